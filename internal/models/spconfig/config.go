package spconfig

import (
	"fmt"
	"log/syslog"
	"os"
	"strings"
	"time"

	"github.com/andskur/argon2-hashing"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Database        DatabaseConfig  `yaml:"database"`
	StaticPath      string          `yaml:"staticpath"`
	BaseURL         string          `yaml:"baseurl"`
	ClientOrigins   []string        `yaml:"clientorigins"`
	User            UserConfig      `yaml:"user"`
	Auth            AuthConfig      `yaml:"auth"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	RateLimit       RateLimitConfig `yaml:"ratelimit"`
	Geo             GeoConfig       `yaml:"geo"`
	Reviews         ReviewsConfig   `yaml:"reviews"`
	Cleanup         CleanupConfig   `yaml:"cleanup"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
}

// UserConfig décrit l'administrateur créé au démarrage
type UserConfig struct {
	Login string `yaml:"login"`
	Email string `yaml:"email"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type AuthConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Cookie string        `yaml:"cookie"`
}

type DatabaseConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Db    string      `yaml:"db"`
	Path  string      `yaml:"path"`
	Dsn   string      `yaml:"dsn"`
	// requêtes plus lentes journalisées en warn ; 0 = défaut
	SlowQuery time.Duration `yaml:"slowquery"`
}

// RateLimitConfig : fenêtre globale par IP, plus un plafond par minute pour le login
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	Max    int64         `yaml:"max"`
	Login  int64         `yaml:"login"`
}

type GeoConfig struct {
	APIURL      string        `yaml:"apiurl"`
	Timeout     time.Duration `yaml:"timeout"`
	MMDB        string        `yaml:"mmdb"`
	CacheWindow time.Duration `yaml:"cachewindow"`
}

type ReviewsConfig struct {
	Captcha bool `yaml:"captcha"`
}

type CleanupConfig struct {
	Schedule string `yaml:"schedule"`
}

const (
	DefaultGeoAPI     = "http://ip-api.com/json/"
	DefaultConfigFile = "sparsh.yaml"
)

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./sparsh.db",
		},
		User: UserConfig{
			Login: "admin",
			Email: "admin@sparsh.local",
			Pass:  "admin1234",
		},
		StaticPath:    "./uploads",
		ClientOrigins: []string{"http://localhost:3000"},
		Production:    false,
		Logger: LoggerConfig{
			Level: "info",
			File: LoggerFileConfig{
				Enable: false,
			},
			Syslog: LoggerSyslogConfig{
				Enable: false,
			},
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:5000",
		},
	}
	example.ApplyDefaults()

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:5000"
		example.Production = true
		example.Database.Path = "/var/lib/sparsh/sqlite.db"
		example.StaticPath = "/var/lib/sparsh/uploads"
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/sparsh/sparsh.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/sparsh/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %w", err)
	}

	return &config, nil
}

// LoadAndValidate charge le fichier, applique les valeurs par défaut et hash
// le mot de passe admin s'il est encore en clair (le fichier est alors réécrit).
func LoadAndValidate(filename string) (*Config, error) {
	conf, err := LoadConfig(filename)
	if err != nil {
		return nil, fmt.Errorf("erreur chargement config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if conf.User.Pass != "" {
		if len(conf.User.Pass) < 8 {
			return nil, fmt.Errorf("le mot de passe doit contenir au moins 8 caractères")
		}

		hash, err := argon2.GenerateFromPassword([]byte(conf.User.Pass), argon2.DefaultParams)
		if err != nil {
			return nil, err
		}
		conf.User.Hash = string(hash)
		conf.User.Pass = ""
		if err := WriteConfigYaml(filename, conf); err != nil {
			return nil, err
		}
	}

	conf.ApplyDefaults()
	return conf, nil
}

func (conf *Config) Validate() error {
	switch conf.Database.Db {
	case "":
		return fmt.Errorf("database.db ne peut pas être vide")
	case "sqlite":
		if conf.Database.Path == "" {
			return fmt.Errorf("database.path ne peut pas être vide")
		}
	case "mysql":
		if conf.Database.Dsn == "" {
			return fmt.Errorf("database.dsn ne peut pas être vide")
		}
	default:
		return fmt.Errorf("le type de database doit etre sqlite ou mysql")
	}
	if conf.User.Login == "" || conf.User.Email == "" {
		return fmt.Errorf("user.login et user.email sont obligatoires")
	}
	return nil
}

// ApplyDefaults complète les champs optionnels
func (conf *Config) ApplyDefaults() {
	if conf.Listen.Website == "" {
		conf.Listen.Website = "localhost:8080"
	}
	if strings.HasPrefix(conf.Listen.Website, ":") {
		conf.Listen.Website = "localhost" + conf.Listen.Website
	}
	if conf.StaticPath == "" {
		conf.StaticPath = "./uploads"
	}
	if conf.Auth.TTL == 0 {
		conf.Auth.TTL = 7 * 24 * time.Hour
	}
	if conf.Auth.Cookie == "" {
		conf.Auth.Cookie = "sparsh"
	}
	if conf.RateLimit.Window == 0 {
		conf.RateLimit.Window = 15 * time.Minute
	}
	if conf.RateLimit.Max == 0 {
		conf.RateLimit.Max = 100
	}
	if conf.RateLimit.Login == 0 {
		conf.RateLimit.Login = 5
	}
	if conf.Geo.APIURL == "" {
		conf.Geo.APIURL = DefaultGeoAPI
	}
	if conf.Geo.Timeout == 0 {
		conf.Geo.Timeout = 5 * time.Second
	}
	if conf.Geo.CacheWindow == 0 {
		conf.Geo.CacheWindow = 24 * time.Hour
	}
	if conf.Database.SlowQuery == 0 {
		conf.Database.SlowQuery = 200 * time.Millisecond
	}
	if conf.Cleanup.Schedule == "" {
		conf.Cleanup.Schedule = "@hourly"
	}
	conf.User.Email = strings.ToLower(strings.TrimSpace(conf.User.Email))
}

func CreateExample(shouldCreateExample bool, configFile string) {
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = DefaultConfigFile
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %w", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	fmt.Println("⚠️  user.pass sera automatiquement hash en argon2 dans user.hash au premier lancement")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Sparsh version %s", version)

	logPrintf("Mode Production %v", config.Production)
	logPrintf("Administrateur %s <%s>", config.User.Login, config.User.Email)

	logPrintf("Database")
	if config.Database.Db == "sqlite" {
		logPrintf("  • Type sqlite")
		logPrintf("  • Path %s", config.Database.Path)
	}
	if config.Database.Db == "mysql" {
		logPrintf("  • Type mysql")
	}
	if config.Database.Redis.Addr != "" {
		logPrintf("  • Cache redis %s", config.Database.Redis.Addr)
	}

	logPrintf("Uploads dans %s (nettoyage %s)", config.StaticPath, config.Cleanup.Schedule)
	logPrintf("Rate limit %d requêtes / %s", config.RateLimit.Max, config.RateLimit.Window)
	if config.Geo.MMDB != "" {
		logPrintf("Géolocalisation via base locale %s", config.Geo.MMDB)
	} else {
		logPrintf("Géolocalisation via %s (timeout %s)", config.Geo.APIURL, config.Geo.Timeout)
	}
	logPrintf("Origines clientes %s", strings.Join(config.ClientOrigins, ", "))

	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	} else {
		logPrintf("  Log en fichier désactivé")
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	} else {
		logPrintf("  Log en syslog désactivé")
	}
}

func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
