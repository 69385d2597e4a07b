package config

import "os"

// Config carries everything the server reads from the environment. It is
// built once in main and passed to components explicitly; nothing reads
// os.Getenv at request time.
type Config struct {
	Addr string

	// StudyURLPrefix is combined with study_ids to make the study URLs
	// handed to participants. Usually the front-end hostname plus any
	// path prefix.
	StudyURLPrefix string

	// AdminPassword is the shared researcher password (not a database
	// credential). AdminPasswordBcrypt, when set, takes precedence and
	// holds a bcrypt hash of the password instead.
	AdminPassword       string
	AdminPasswordBcrypt string

	// DBDriver selects the store: "memory", "sqlite" or "mongo".
	DBDriver   string
	SQLitePath string
	MongoURI   string
	MongoDB    string

	// CORSFrontendOrigin should be the front-end hostname. Setting either
	// origin to "*" allows all origins; CORSLocalhostOrigin exists for
	// development.
	CORSFrontendOrigin  string
	CORSLocalhostOrigin string
}

func Load() *Config {
	return &Config{
		Addr:                getEnv("INTACT_ADDR", ":8080"),
		StudyURLPrefix:      getEnv("INTACT_STUDY_URL_PREFIX", "https://intact.sail.codes"),
		AdminPassword:       getEnv("INTACT_ADMIN_PASSWORD", "password"),
		AdminPasswordBcrypt: getEnv("INTACT_ADMIN_PASSWORD_BCRYPT", ""),
		DBDriver:            getEnv("INTACT_DB", "memory"),
		SQLitePath:          getEnv("INTACT_SQLITE_PATH", "intact.db"),
		MongoURI:            getEnv("INTACT_MONGO_URI", "mongodb://localhost:27017/"),
		MongoDB:             getEnv("INTACT_MONGO_DB", "intact"),
		CORSFrontendOrigin:  getEnv("INTACT_CORS_FRONTEND_ORIGIN", "https://intact.sail.codes"),
		CORSLocalhostOrigin: getEnv("INTACT_CORS_LOCALHOST_ORIGIN", ""),
	}
}

// CORSOrigins returns the configured allowed origins, skipping unset ones.
func (c *Config) CORSOrigins() []string {
	out := []string{}
	if c.CORSFrontendOrigin != "" {
		out = append(out, c.CORSFrontendOrigin)
	}
	if c.CORSLocalhostOrigin != "" {
		out = append(out, c.CORSLocalhostOrigin)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
