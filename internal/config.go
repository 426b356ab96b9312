package internal

import (
	"fmt"
	"strings"
	"time"

	"postbox/auth"

	env "github.com/Netflix/go-env"
	"github.com/samber/lo"
)

type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=postbox"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	StrictPasswords   bool          `env:"STRICT_PASSWORDS,default=false"`
	MaxTitleLength    int           `env:"MAX_TITLE_LENGTH,default=120"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	CensoredWords     string        `env:"CENSORED_WORDS"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	SearchLimit       int           `env:"SEARCH_LIMIT,default=10"`
	DebugPort         int           `env:"DEBUG_PORT,default=0"`
	NoColour          bool          `env:"NO_COLOUR,default=false"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.BadgerFilepath == "" || c.AuthSecret == "" {
		return fmt.Errorf("BADGER_FILEPATH and AUTH_SECRET must not be empty")
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	if c.AuthTokenDuration <= 0 {
		return fmt.Errorf("AUTH_TOKEN_DURATION must be positive, got %s", c.AuthTokenDuration)
	}
	if c.DebugPort < 0 || c.DebugPort > 65535 {
		return fmt.Errorf("DEBUG_PORT out of range: %d", c.DebugPort)
	}
	return nil
}

// CensoredWordList splits CENSORED_WORDS on commas, dropping blanks.
func (c Config) CensoredWordList() []string {
	return lo.FilterMap(strings.Split(c.CensoredWords, ","), func(word string, _ int) (string, bool) {
		word = strings.TrimSpace(word)
		return word, word != ""
	})
}

func (c Config) Policy() auth.Policy {
	return auth.Policy{
		StrictPasswords:  c.StrictPasswords,
		MaxTitleLength:   c.MaxTitleLength,
		MaxContentLength: c.MaxContentLength,
	}
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
