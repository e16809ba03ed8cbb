package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/zarver/zarver/internal/apikey"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	"github.com/zarver/zarver/internal/audit"
	"github.com/zarver/zarver/internal/authorization"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/config"
	"github.com/zarver/zarver/internal/decision"
	"github.com/zarver/zarver/internal/generator"
	"github.com/zarver/zarver/internal/migration"
	"github.com/zarver/zarver/internal/observability"
	"github.com/zarver/zarver/internal/quota"
	"github.com/zarver/zarver/internal/ratelimit"
	"github.com/zarver/zarver/internal/server"
	"github.com/zarver/zarver/internal/signup"
	"github.com/zarver/zarver/internal/stats"
	"github.com/zarver/zarver/internal/vote"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app          *fx.App
	server       *server.Server
	db           *gorm.DB
	genID        *snowflake.Node
	baseURL      string
	httpSrv      *httptest.Server
	adminKey     string
	adminKeyID   string
	billingKey   string
	billingKeyID string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthAndMetrics(t *testing.T) {
	resetDatabase(t, env.db)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for metrics, got %d", resp.StatusCode)
	}
}

func TestE2E_PublicSurfaceRequiresUserHeader(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/v1/quota", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d: %s", resp.StatusCode, string(body))
	}
	if errType := decodeError(t, body).Type; errType != "unauthorized" {
		t.Fatalf("expected unauthorized error, got %q", errType)
	}

	headers := map[string]string{server.HeaderUser: "not-a-snowflake"}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/quota", nil, headers)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed identity, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_SignupAndDecisionLifecycle(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()

	signupResp := signupUser(t, client, userID, false)
	if signupResp.Quota.DailyLimit != 3 {
		t.Fatalf("expected daily limit 3, got %d", signupResp.Quota.DailyLimit)
	}
	if signupResp.Quota.QueriesRemaining != 3 {
		t.Fatalf("expected 3 queries remaining after signup, got %d", signupResp.Quota.QueriesRemaining)
	}
	if signupResp.Quota.Premium {
		t.Fatalf("expected free plan on plain signup")
	}

	// Replaying the signup webhook reports the same row instead of failing.
	again := signupUser(t, client, userID, false)
	if again.UserID != signupResp.UserID {
		t.Fatalf("expected idempotent signup, got %q and %q", signupResp.UserID, again.UserID)
	}

	created := createDecision(t, client, userID, "Should I accept the job offer in another city?", "")
	if created.ID == "" {
		t.Fatalf("expected decision id")
	}
	if len(created.Alternatives) != 4 {
		t.Fatalf("expected 4 alternatives, got %d", len(created.Alternatives))
	}
	if created.PrivacyLevel != "private" {
		t.Fatalf("expected private default, got %q", created.PrivacyLevel)
	}
	if created.ShareSlug != nil {
		t.Fatalf("private decision must not get a share slug")
	}
	if created.QueriesRemaining != 2 {
		t.Fatalf("expected 2 queries remaining, got %d", created.QueriesRemaining)
	}

	quotaStatus := getQuota(t, client, userID)
	if quotaStatus.QueriesUsedToday != 1 || quotaStatus.QueriesRemaining != 2 {
		t.Fatalf("unexpected quota after create: used=%d remaining=%d", quotaStatus.QueriesUsedToday, quotaStatus.QueriesRemaining)
	}

	headers := map[string]string{server.HeaderUser: userID}
	detail := struct {
		Text            string   `json:"text"`
		Alternatives    []string `json:"alternatives"`
		ResolutionState string   `json:"resolution_state"`
	}{}
	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/v1/decisions/"+created.ID, nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get decision failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &detail)
	if detail.ResolutionState != "unresolved" {
		t.Fatalf("expected unresolved state, got %q", detail.ResolutionState)
	}

	// A stranger must not see the private record, and must not learn it exists.
	strangerID := env.genID.Generate().String()
	signupUser(t, client, strangerID, false)
	strangerHeaders := map[string]string{server.HeaderUser: strangerID}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/decisions/"+created.ID, nil, strangerHeaders)
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 403/404 for stranger, got %d: %s", resp.StatusCode, string(body))
	}

	resolved := struct {
		ID            string `json:"id"`
		SelectedIndex int    `json:"selected_index"`
		SelectedText  string `json:"selected_text"`
	}{}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/resolve", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &resolved)
	if resolved.SelectedIndex < 0 || resolved.SelectedIndex >= len(created.Alternatives) {
		t.Fatalf("selected index %d out of range", resolved.SelectedIndex)
	}
	if resolved.SelectedText != created.Alternatives[resolved.SelectedIndex] {
		t.Fatalf("selected text %q does not match alternative %d", resolved.SelectedText, resolved.SelectedIndex)
	}

	// The coin is flipped exactly once.
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/resolve", nil, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second resolve, got %d: %s", resp.StatusCode, string(body))
	}
	if payload := decodeError(t, body); payload.Type != "conflict" || payload.Message != "already_resolved" {
		t.Fatalf("unexpected conflict payload: %+v", payload)
	}

	annotated := struct {
		Implemented *bool `json:"implemented"`
	}{}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/annotate", map[string]any{"implemented": true}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("annotate failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &annotated)
	if annotated.Implemented == nil || !*annotated.Implemented {
		t.Fatalf("expected implemented=true after annotate")
	}

	userStats := struct {
		DecisionsTotal   int `json:"decisions_total"`
		ResolvedTotal    int `json:"resolved_total"`
		ImplementedTotal int `json:"implemented_total"`
		SuccessRate      int `json:"success_rate"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/me/stats", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &userStats)
	if userStats.DecisionsTotal != 1 || userStats.ResolvedTotal != 1 || userStats.ImplementedTotal != 1 {
		t.Fatalf("unexpected stats: %+v", userStats)
	}
	if userStats.SuccessRate != 100 {
		t.Fatalf("expected 100%% success rate, got %d", userStats.SuccessRate)
	}

	history := struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/decisions", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list decisions failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &history)
	if len(history.Data) != 1 {
		t.Fatalf("expected 1 decision in history, got %d", len(history.Data))
	}
}

func TestE2E_QuotaExhaustionAndPremiumBypass(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()
	signupUser(t, client, userID, false)

	for i := 0; i < 3; i++ {
		created := createDecision(t, client, userID, fmt.Sprintf("Quota run %d: what should I cook tonight?", i), "")
		if created.QueriesRemaining != 2-i {
			t.Fatalf("expected %d remaining after create %d, got %d", 2-i, i, created.QueriesRemaining)
		}
	}

	headers := map[string]string{server.HeaderUser: userID}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions", map[string]any{"text": "One more question over the limit"}, headers)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d: %s", resp.StatusCode, string(body))
	}
	payload := decodeError(t, body)
	if payload.Type != "quota_exceeded" {
		t.Fatalf("expected quota_exceeded, got %q", payload.Type)
	}
	if payload.Remaining == nil || *payload.Remaining != 0 {
		t.Fatalf("expected remaining=0 in quota payload: %+v", payload)
	}
	if payload.DailyLimit == nil || *payload.DailyLimit != 3 {
		t.Fatalf("expected daily_limit=3 in quota payload: %+v", payload)
	}

	// Support can read any user's ledger with the billing credential.
	billingHeaders := map[string]string{server.HeaderAPIKey: env.billingKey}
	supportView := quotaStatusBody{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, billingHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("internal quota view failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &supportView)
	if supportView.QueriesUsedToday != 3 {
		t.Fatalf("expected 3 used, got %d", supportView.QueriesUsedToday)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/internal/quota/"+userID+"/premium", nil, billingHeaders)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("grant premium failed: %d: %s", resp.StatusCode, string(body))
	}

	created := createDecision(t, client, userID, "Premium question beyond the free limit", "")
	if created.QueriesRemaining != -1 {
		t.Fatalf("expected unlimited marker -1, got %d", created.QueriesRemaining)
	}

	resp, body = doJSON(t, client, http.MethodDelete, env.baseURL+"/internal/quota/"+userID+"/premium", nil, billingHeaders)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke premium failed: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions", map[string]any{"text": "Back on the free plan"}, headers)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after revoke, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_PublicFeedAndVotes(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	ownerID := env.genID.Generate().String()
	voterID := env.genID.Generate().String()
	signupUser(t, client, ownerID, false)
	signupUser(t, client, voterID, false)

	created := createDecision(t, client, ownerID, "Tatilde nereye gitsem?", "public")
	if created.ShareSlug == nil || *created.ShareSlug == "" {
		t.Fatalf("expected share slug on public decision")
	}

	voterHeaders := map[string]string{server.HeaderUser: voterID}
	feed := feedBody{}
	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/v1/feed", nil, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &feed)
	if len(feed.Data) != 0 {
		t.Fatalf("unresolved decisions must not appear in the feed, got %d items", len(feed.Data))
	}

	ownerHeaders := map[string]string{server.HeaderUser: ownerID}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/resolve", nil, ownerHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/feed", nil, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed failed: %d: %s", resp.StatusCode, string(body))
	}
	feed = feedBody{}
	mustDecode(t, body, &feed)
	if len(feed.Data) != 1 {
		t.Fatalf("expected 1 feed item, got %d", len(feed.Data))
	}
	if feed.Data[0].ID != created.ID {
		t.Fatalf("feed item id %q does not match decision %q", feed.Data[0].ID, created.ID)
	}
	if feed.Data[0].SelectedText == "" {
		t.Fatalf("feed item must carry the selected alternative")
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/feed/"+*created.ShareSlug, nil, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed by slug failed: %d: %s", resp.StatusCode, string(body))
	}

	voteResp := struct {
		VoteType string `json:"vote_type"`
		Stats    struct {
			Helpful   int64 `json:"helpful"`
			Unhelpful int64 `json:"unhelpful"`
			Total     int64 `json:"total"`
		} `json:"vote_stats"`
	}{}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/vote", map[string]any{"vote_type": "helpful"}, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &voteResp)
	if voteResp.Stats.Helpful != 1 || voteResp.Stats.Total != 1 {
		t.Fatalf("unexpected tally after first vote: %+v", voteResp.Stats)
	}

	// Re-voting replaces the previous ballot instead of stacking.
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+created.ID+"/vote", map[string]any{"vote_type": "unhelpful"}, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-vote failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &voteResp)
	if voteResp.Stats.Helpful != 0 || voteResp.Stats.Unhelpful != 1 || voteResp.Stats.Total != 1 {
		t.Fatalf("unexpected tally after re-vote: %+v", voteResp.Stats)
	}

	voteStats := struct {
		Helpful           int64 `json:"helpful"`
		Total             int64 `json:"total"`
		HelpfulPercentage int   `json:"helpful_percentage"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/decisions/"+created.ID+"/votes", nil, voterHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote stats failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &voteStats)
	if voteStats.Total != 1 || voteStats.HelpfulPercentage != 0 {
		t.Fatalf("unexpected vote stats: %+v", voteStats)
	}

	// Private decisions are not votable even when resolved.
	hidden := createDecision(t, client, ownerID, "Private question nobody should vote on", "")
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+hidden.ID+"/resolve", nil, ownerHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve private failed: %d: %s", resp.StatusCode, string(body))
	}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions/"+hidden.ID+"/vote", map[string]any{"vote_type": "helpful"}, voterHeaders)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 voting on private decision, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_InternalAuthorizationMatrix(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()
	signupUser(t, client, userID, false)

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d: %s", resp.StatusCode, string(body))
	}

	badHeaders := map[string]string{server.HeaderAPIKey: "zrv_not_a_real_secret"}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, badHeaders)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus key, got %d: %s", resp.StatusCode, string(body))
	}

	// Billing credentials stop at quota administration.
	billingHeaders := map[string]string{server.HeaderAPIKey: env.billingKey}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/internal/signup", map[string]any{"user_id": env.genID.Generate().String()}, billingHeaders)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for billing signup, got %d: %s", resp.StatusCode, string(body))
	}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/api-keys", nil, billingHeaders)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for billing key listing, got %d: %s", resp.StatusCode, string(body))
	}

	adminHeaders := map[string]string{server.HeaderAPIKey: env.adminKey}
	keyList := struct {
		Data []struct {
			KeyID string `json:"key_id"`
			Name  string `json:"name"`
		} `json:"data"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/api-keys", nil, adminHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin key listing failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &keyList)
	found := false
	for _, key := range keyList.Data {
		if key.KeyID == env.adminKeyID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected admin key %q in listing", env.adminKeyID)
	}
}

func TestE2E_APIKeyRotation(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()
	signupUser(t, client, userID, false)

	adminHeaders := map[string]string{server.HeaderAPIKey: env.adminKey}
	secret := struct {
		KeyID  string `json:"key_id"`
		APIKey string `json:"api_key"`
	}{}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/internal/api-keys", map[string]any{"name": "e2e-rotation", "role": "billing"}, adminHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create key failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &secret)
	if secret.APIKey == "" || secret.KeyID == "" {
		t.Fatalf("expected key material in create response")
	}

	freshHeaders := map[string]string{server.HeaderAPIKey: secret.APIKey}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, freshHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fresh key should read quota: %d: %s", resp.StatusCode, string(body))
	}

	rotated := struct {
		KeyID  string `json:"key_id"`
		APIKey string `json:"api_key"`
	}{}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/internal/api-keys/"+secret.KeyID+"/rotate", nil, adminHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &rotated)
	if rotated.KeyID == secret.KeyID {
		t.Fatalf("rotation must mint a new key id")
	}

	// Both generations stay live inside the grace window.
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, freshHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("old key should survive the grace window: %d: %s", resp.StatusCode, string(body))
	}
	rotatedHeaders := map[string]string{server.HeaderAPIKey: rotated.APIKey}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, rotatedHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated key should read quota: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodDelete, env.baseURL+"/internal/api-keys/"+rotated.KeyID, nil, adminHeaders)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke failed: %d: %s", resp.StatusCode, string(body))
	}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/quota/"+userID, nil, rotatedHeaders)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_AuditTrail(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()
	signupUser(t, client, userID, false)

	adminHeaders := map[string]string{server.HeaderAPIKey: env.adminKey}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/internal/quota/"+userID+"/premium", nil, adminHeaders)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("grant premium failed: %d: %s", resp.StatusCode, string(body))
	}

	trail := struct {
		Data []struct {
			Action     string  `json:"action"`
			ActorType  string  `json:"actor_type"`
			ActorID    *string `json:"actor_id"`
			EntityType string  `json:"entity_type"`
			EntityID   *string `json:"entity_id"`
		} `json:"data"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/audit-logs?action=quota.premium_granted", nil, adminHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit listing failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &trail)
	if len(trail.Data) != 1 {
		t.Fatalf("expected 1 premium grant entry, got %d", len(trail.Data))
	}
	entry := trail.Data[0]
	if entry.ActorType != "api_key" {
		t.Fatalf("expected api_key actor, got %q", entry.ActorType)
	}
	if entry.ActorID == nil || *entry.ActorID != env.adminKeyID {
		t.Fatalf("expected actor %q, got %v", env.adminKeyID, entry.ActorID)
	}
	if entry.EntityID == nil || *entry.EntityID != userID {
		t.Fatalf("expected entity %q, got %v", userID, entry.EntityID)
	}

	// Denied calls land in the trail as well.
	billingHeaders := map[string]string{server.HeaderAPIKey: env.billingKey}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/audit-logs", nil, billingHeaders)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for billing audit read, got %d: %s", resp.StatusCode, string(body))
	}
	denied := struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/internal/audit-logs?action=authorization.denied", nil, adminHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit listing failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &denied)
	if len(denied.Data) == 0 {
		t.Fatalf("expected at least one denial entry")
	}
}

func TestE2E_TestCleanup(t *testing.T) {
	resetDatabase(t, env.db)
	client := newHTTPClient()
	userID := env.genID.Generate().String()
	signupUser(t, client, userID, false)
	createDecision(t, client, userID, "Row that should vanish after cleanup", "")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/internal/test/cleanup", map[string]any{"user_ids": []string{userID}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup failed: %d: %s", resp.StatusCode, string(body))
	}

	headers := map[string]string{server.HeaderUser: userID}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/quota", nil, headers)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after cleanup, got %d: %s", resp.StatusCode, string(body))
	}

	history := struct {
		Data []json.RawMessage `json:"data"`
	}{}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/v1/decisions", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list decisions failed: %d: %s", resp.StatusCode, string(body))
	}
	mustDecode(t, body, &history)
	if len(history.Data) != 0 {
		t.Fatalf("expected empty history after cleanup, got %d rows", len(history.Data))
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv       *server.Server
		dbConn    *gorm.DB
		genID     *snowflake.Node
		apiKeySvc apikeydomain.Service
	)

	app := fx.New(
		observability.Module,
		config.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(newTestDB),
		authorization.Module,
		audit.Module,
		apikey.Module,
		quota.Module,
		generator.Module,
		decision.Module,
		vote.Module,
		stats.Module,
		signup.Module,
		ratelimit.Module,
		migration.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &genID, &apiKeySvc),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	adminKey, err := apiKeySvc.Create(ctx, apikeydomain.CreateRequest{Name: "e2e-admin", Role: apikeydomain.RoleAdmin})
	if err != nil {
		app.Stop(context.Background())
		return nil, err
	}
	billingKey, err := apiKeySvc.Create(ctx, apikeydomain.CreateRequest{Name: "e2e-billing", Role: apikeydomain.RoleBilling})
	if err != nil {
		app.Stop(context.Background())
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:          app,
		server:       srv,
		db:           dbConn,
		genID:        genID,
		baseURL:      httpSrv.URL,
		httpSrv:      httpSrv,
		adminKey:     adminKey.APIKey,
		adminKeyID:   adminKey.KeyID,
		billingKey:   billingKey.APIKey,
		billingKeyID: billingKey.KeyID,
	}, nil
}

// newTestDB replaces db.Module with a shared in-memory sqlite handle so the
// suite runs without external infrastructure.
func newTestDB(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(cfg.DBName), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})
	return conn, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("APP_MODE", "prod")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", "file:zarver_e2e?mode=memory&cache=shared&_loc=auto")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("RATE_LIMIT_ENABLED", "false")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

// resetDatabase wipes the domain tables. API keys and policy rows survive so
// the credentials minted at startup keep working across tests.
func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{"decision_votes", "decisions", "user_decision_stats", "quota_states", "audit_logs"} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

type signupBody struct {
	UserID string          `json:"user_id"`
	Quota  quotaStatusBody `json:"quota"`
}

type quotaStatusBody struct {
	UserID           string `json:"user_id"`
	Premium          bool   `json:"is_premium"`
	QueriesUsedToday int    `json:"queries_used_today"`
	QueriesRemaining int    `json:"queries_remaining"`
	DailyLimit       int    `json:"daily_limit"`
}

type createDecisionBody struct {
	ID               string   `json:"id"`
	Alternatives     []string `json:"alternatives"`
	PrivacyLevel     string   `json:"privacy_level"`
	ShareSlug        *string  `json:"share_slug"`
	QueriesRemaining int      `json:"queries_remaining"`
}

type feedBody struct {
	Data []struct {
		ID           string  `json:"id"`
		Text         string  `json:"text"`
		SelectedText string  `json:"selected_text"`
		ShareSlug    *string `json:"share_slug"`
	} `json:"data"`
}

type errorPayloadBody struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Remaining  *int   `json:"remaining"`
	DailyLimit *int   `json:"daily_limit"`
}

func signupUser(t *testing.T, client *http.Client, userID string, premium bool) signupBody {
	t.Helper()

	headers := map[string]string{server.HeaderAPIKey: env.adminKey}
	payload := map[string]any{"user_id": userID}
	if premium {
		payload["premium"] = true
	}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/internal/signup", payload, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup failed: %d: %s", resp.StatusCode, string(body))
	}

	out := signupBody{}
	mustDecode(t, body, &out)
	return out
}

func createDecision(t *testing.T, client *http.Client, userID, text, privacy string) createDecisionBody {
	t.Helper()

	headers := map[string]string{server.HeaderUser: userID}
	payload := map[string]any{"text": text}
	if privacy != "" {
		payload["privacy_level"] = privacy
	}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/decisions", payload, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create decision failed: %d: %s", resp.StatusCode, string(body))
	}

	out := createDecisionBody{}
	mustDecode(t, body, &out)
	return out
}

func getQuota(t *testing.T, client *http.Client, userID string) quotaStatusBody {
	t.Helper()

	headers := map[string]string{server.HeaderUser: userID}
	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/v1/quota", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quota status failed: %d: %s", resp.StatusCode, string(body))
	}

	out := quotaStatusBody{}
	mustDecode(t, body, &out)
	return out
}

func decodeError(t *testing.T, body []byte) errorPayloadBody {
	t.Helper()

	wrapper := struct {
		Error errorPayloadBody `json:"error"`
	}{}
	mustDecode(t, body, &wrapper)
	return wrapper.Error
}

func mustDecode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response %q: %v", string(body), err)
	}
}

func doJSON(t *testing.T, client *http.Client, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
