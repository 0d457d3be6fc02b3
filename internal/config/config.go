package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const storedDecimals = 6

type Config struct {
	AppPort     string
	ServiceName string
	LogLevel    string

	DBDriver    string // postgres | mysql
	DatabaseURL string

	PGHost string
	PGPort string
	PGDB   string
	PGUser string
	PGPass string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisPass string
	RedisDB   int

	IdempTTLSecs    int
	LoanLockTTLSecs int

	HederaNetwork     string
	HederaOperatorID  string
	HederaOperatorKey string
	EscrowAccountKey  string
	USDCTokenID       string
	USDCDecimals      int
	MazaoDecimals     int
	EscrowAccountID   string
	TreasuryAccountID string

	OTelEndpoint    string
	RetryPolicyFile string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

// Load reads the environment, after an optional .env in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:     getenv("APP_PORT", "8080"),
		ServiceName: getenv("SERVICE_NAME", "mazaochain"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PGHost: getenv("PGHOST", "postgres"),
		PGPort: getenv("PGPORT", "5432"),
		PGDB:   getenv("PGDATABASE", "mazaochain"),
		PGUser: getenv("PGUSER", "mazaochain"),
		PGPass: getenv("PGPASSWORD", "mazaochain"),

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "mazaochain"),
		MySQLUser: getenv("MYSQL_USER", "mazaochain"),
		MySQLPass: getenv("MYSQL_PASS", "mazaochain"),

		RedisAddr: getenv("REDIS_ADDR", "redis:6379"),
		RedisPass: os.Getenv("REDIS_PASSWORD"),
		RedisDB:   getint("REDIS_DB", 0),

		IdempTTLSecs:    getint("IDEMPOTENCY_TTL_SECONDS", 300),
		LoanLockTTLSecs: getint("LOAN_LOCK_TTL_SECONDS", 120),

		HederaNetwork:     getenv("HEDERA_NETWORK", "testnet"),
		HederaOperatorID:  os.Getenv("HEDERA_OPERATOR_ID"),
		HederaOperatorKey: os.Getenv("HEDERA_OPERATOR_KEY"),
		EscrowAccountKey:  os.Getenv("ESCROW_ACCOUNT_KEY"),
		USDCTokenID:       os.Getenv("USDC_TOKEN_ID"),
		USDCDecimals:      getint("USDC_DECIMALS", 6),
		MazaoDecimals:     getint("MAZAO_DECIMALS", 6),
		EscrowAccountID:   os.Getenv("ESCROW_ACCOUNT_ID"),
		TreasuryAccountID: os.Getenv("TREASURY_ACCOUNT_ID"),

		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_ENDPOINT"),
		RetryPolicyFile: os.Getenv("RETRY_POLICY_FILE"),
	}
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			if c.PGHost == "" || c.PGPort == "" || c.PGDB == "" || c.PGUser == "" {
				return errors.New("missing Postgres config (DATABASE_URL or PGHOST/PGPORT/PGDATABASE/PGUSER)")
			}
			if _, err := net.LookupPort("tcp", c.PGPort); err != nil {
				return fmt.Errorf("invalid PGPORT %q: %w", c.PGPort, err)
			}
		}
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.HederaOperatorID == "" || c.HederaOperatorKey == "" {
		return errors.New("missing HEDERA_OPERATOR_ID/HEDERA_OPERATOR_KEY")
	}
	if c.USDCTokenID == "" || c.EscrowAccountID == "" || c.TreasuryAccountID == "" {
		return errors.New("missing USDC_TOKEN_ID/ESCROW_ACCOUNT_ID/TREASURY_ACCOUNT_ID")
	}
	if c.USDCDecimals < 0 || c.MazaoDecimals < 0 {
		return errors.New("token decimals must not be negative")
	}
	// amounts are stored as numeric(20,6)
	if c.USDCDecimals > storedDecimals || c.MazaoDecimals > storedDecimals {
		return fmt.Errorf("token decimals exceed stored precision of %d", storedDecimals)
	}
	if c.LoanLockTTLSecs <= 0 {
		return errors.New("LOAN_LOCK_TTL_SECONDS must be positive")
	}
	return nil
}

// DSN returns the connection string for the selected driver.
func (c *Config) DSN() string {
	if c.DBDriver == "mysql" {
		return c.MySQLDSN()
	}
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.PostgresDSN()
}

func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PGUser, c.PGPass),
		Host:     net.JoinHostPort(c.PGHost, c.PGPort),
		Path:     "/" + c.PGDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4",
		c.MySQLUser, c.MySQLPass, net.JoinHostPort(c.MySQLHost, c.MySQLPort), c.MySQLDB)
}

// SignerKeys maps accounts the operator does not control to their keys.
func (c *Config) SignerKeys() map[string]string {
	out := map[string]string{}
	if c.EscrowAccountID != "" && c.EscrowAccountKey != "" {
		out[c.EscrowAccountID] = c.EscrowAccountKey
	}
	return out
}
