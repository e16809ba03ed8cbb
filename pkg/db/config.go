package db

// Config carries the connection and pool settings for the primary database.
// ConnMaxLifetime and ConnMaxIdleTime are expressed in seconds.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
