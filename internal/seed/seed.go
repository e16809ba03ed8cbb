package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	statsdomain "github.com/zarver/zarver/internal/stats/domain"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Fixed demo identities. IDs are constants so reseeding cannot duplicate
// rows and devs can hardcode them in curl sessions.
const (
	DemoFreeUserID    snowflake.ID = 1001
	DemoPremiumUserID snowflake.ID = 1002

	demoPublicDecisionID  snowflake.ID = 2001
	demoPrivateDecisionID snowflake.ID = 2002
	demoPremiumDecisionID snowflake.ID = 2003

	demoVoteHelpfulID   snowflake.ID = 3001
	demoVoteUnhelpfulID snowflake.ID = 3002
)

// EnsureDemoData populates a dev instance with one free and one premium
// user, a couple of decisions and votes so the public feed renders. Safe
// to call on every startup.
func EnsureDemoData(db *gorm.DB, dailyLimit int) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if dailyLimit < 1 {
		dailyLimit = 3
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		if err := ensureQuotaRow(ctx, tx, DemoFreeUserID, false, dailyLimit, today, now); err != nil {
			return err
		}
		if err := ensureQuotaRow(ctx, tx, DemoPremiumUserID, true, dailyLimit, today, now); err != nil {
			return err
		}
		if err := ensureDemoDecisions(ctx, tx, now); err != nil {
			return err
		}
		if err := ensureDemoVotes(ctx, tx, now); err != nil {
			return err
		}
		return ensureDemoStats(ctx, tx, now)
	})
}

func ensureQuotaRow(ctx context.Context, tx *gorm.DB, userID snowflake.ID, premium bool, dailyLimit int, today, now time.Time) error {
	var state quotadomain.QuotaState
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	state = quotadomain.QuotaState{
		UserID:     userID,
		Premium:    premium,
		QuotaDate:  today,
		DailyLimit: dailyLimit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).Create(&state).Error
}

func ensureDemoDecisions(ctx context.Context, tx *gorm.DB, now time.Time) error {
	selectedOne := 1
	selectedZero := 0
	implementedYes := true
	implementedNo := false
	holidaySlug := "tatilde-nereye-gitsem-demo"
	laptopSlug := "hangi-laptopu-alsam-demo"
	resolvedAt := now.Add(-24 * time.Hour)

	decisions := []decisiondomain.Decision{
		{
			ID:      demoPublicDecisionID,
			OwnerID: DemoFreeUserID,
			Text:    "Tatilde nereye gitsem?",
			Alternatives: datatypes.JSONSlice[string]{
				"Kapadokya'ya git",
				"Ege sahillerini gez",
				"Karadeniz yaylalarına çık",
				"Şehirde kalıp dinlen",
			},
			PrivacyLevel:    decisiondomain.PrivacyPublic,
			ResolutionState: decisiondomain.ResolutionResolved,
			SelectedIndex:   &selectedOne,
			Implemented:     &implementedYes,
			ShareSlug:       &holidaySlug,
			ResolvedAt:      &resolvedAt,
			CreatedAt:       now.Add(-48 * time.Hour),
			UpdatedAt:       resolvedAt,
		},
		{
			ID:      demoPrivateDecisionID,
			OwnerID: DemoFreeUserID,
			Text:    "İşimi değiştirmeli miyim?",
			Alternatives: datatypes.JSONSlice[string]{
				"Yeni teklifleri araştır",
				"Mevcut işinde zam iste",
				"Bir mentora danış",
				"Altı ay daha bekle",
			},
			PrivacyLevel:    decisiondomain.PrivacyPrivate,
			ResolutionState: decisiondomain.ResolutionUnresolved,
			CreatedAt:       now.Add(-12 * time.Hour),
			UpdatedAt:       now.Add(-12 * time.Hour),
		},
		{
			ID:      demoPremiumDecisionID,
			OwnerID: DemoPremiumUserID,
			Text:    "Hangi laptopu alsam?",
			Alternatives: datatypes.JSONSlice[string]{
				"Hafif bir ultrabook al",
				"Oyun bilgisayarına yatır",
				"İkinci el MacBook bak",
				"Mevcut cihazı yükselt",
			},
			PrivacyLevel:    decisiondomain.PrivacyPublic,
			ResolutionState: decisiondomain.ResolutionResolved,
			SelectedIndex:   &selectedZero,
			Implemented:     &implementedNo,
			ShareSlug:       &laptopSlug,
			ResolvedAt:      &resolvedAt,
			CreatedAt:       now.Add(-36 * time.Hour),
			UpdatedAt:       resolvedAt,
		},
	}

	for i := range decisions {
		var existing decisiondomain.Decision
		err := tx.WithContext(ctx).Where("id = ?", decisions[i].ID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.WithContext(ctx).Create(&decisions[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureDemoVotes(ctx context.Context, tx *gorm.DB, now time.Time) error {
	votes := []votedomain.DecisionVote{
		{
			ID:         demoVoteHelpfulID,
			DecisionID: demoPublicDecisionID,
			UserID:     DemoPremiumUserID,
			VoteType:   votedomain.VoteHelpful,
			CreatedAt:  now.Add(-20 * time.Hour),
			UpdatedAt:  now.Add(-20 * time.Hour),
		},
		{
			ID:         demoVoteUnhelpfulID,
			DecisionID: demoPremiumDecisionID,
			UserID:     DemoFreeUserID,
			VoteType:   votedomain.VoteUnhelpful,
			CreatedAt:  now.Add(-18 * time.Hour),
			UpdatedAt:  now.Add(-18 * time.Hour),
		},
	}

	for i := range votes {
		var existing votedomain.DecisionVote
		err := tx.WithContext(ctx).Where("id = ?", votes[i].ID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.WithContext(ctx).Create(&votes[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureDemoStats(ctx context.Context, tx *gorm.DB, now time.Time) error {
	stats := []statsdomain.UserDecisionStats{
		{
			UserID:           DemoFreeUserID,
			DecisionsTotal:   2,
			ResolvedTotal:    1,
			ImplementedTotal: 1,
			SuccessRate:      50,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			UserID:           DemoPremiumUserID,
			DecisionsTotal:   1,
			ResolvedTotal:    1,
			ImplementedTotal: 0,
			SuccessRate:      0,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}

	for i := range stats {
		var existing statsdomain.UserDecisionStats
		err := tx.WithContext(ctx).Where("user_id = ?", stats[i].UserID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.WithContext(ctx).Create(&stats[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
