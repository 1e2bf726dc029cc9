package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTSecret       string
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	SED             SEDConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Stores aceitos para o cache de respostas e tokens da SED.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// SEDConfig reúne parâmetros da integração com a API da SED.
type SEDConfig struct {
	BaseURL        string
	Username       string
	Password       string
	RequestTimeout time.Duration

	DiretoriaID   string
	MunicipioID   string
	RedeEnsinoCod string

	TokenCachePrefix      string
	TokenExpirationBuffer time.Duration
	TokenDefaultLifetime  time.Duration
	TokenRefreshInterval  time.Duration

	RetryMaxAttempts int
	RetryDelay       time.Duration
	RetryStatusCodes []int

	CacheTTL        time.Duration
	CachePrefix     string
	CacheStore      string
	CacheMaxEntries int

	BusinessErrorFields []string

	LogRequests bool
	LogBodies   bool
	Sandbox     bool
	Debug       bool
}

// HasDefaultCredentials indica se há usuário/senha globais configurados.
func (c SEDConfig) HasDefaultCredentials() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

const (
	defaultSEDBaseURL        = "https://integracaosed.educacao.sp.gov.br/ncaapi/api"
	defaultSEDSandboxBaseURL = "https://homologacaointegracaosed.educacao.sp.gov.br/ncaapi/api"
)

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	sed, err := LoadSED()
	if err != nil {
		return nil, err
	}
	cfg.SED = *sed

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.SED.CacheStore == StoreRedis && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório quando SED_CACHE_STORE=redis")
	}

	return cfg, nil
}

// LoadSED lê somente as chaves SED_*; usado também pelo CLI de tenants.
func LoadSED() (*SEDConfig, error) {
	sed := &SEDConfig{}
	var err error

	sed.Sandbox, err = parseBoolEnv("SED_SANDBOX", false)
	if err != nil {
		return nil, err
	}
	sed.Debug, err = parseBoolEnv("SED_DEBUG", false)
	if err != nil {
		return nil, err
	}

	baseDefault := defaultSEDBaseURL
	if sed.Sandbox {
		baseDefault = defaultSEDSandboxBaseURL
	}
	sed.BaseURL = strings.TrimRight(strings.TrimSpace(getEnv("SED_BASE_URL", baseDefault)), "/")
	if sed.BaseURL == "" {
		return nil, errors.New("SED_BASE_URL obrigatório")
	}

	sed.Username = strings.TrimSpace(getEnv("SED_USERNAME", ""))
	sed.Password = getEnv("SED_PASSWORD", "")
	sed.DiretoriaID = strings.TrimSpace(getEnv("SED_DIRETORIA_ID", ""))
	sed.MunicipioID = strings.TrimSpace(getEnv("SED_MUNICIPIO_ID", ""))
	sed.RedeEnsinoCod = strings.TrimSpace(getEnv("SED_REDE_ENSINO_COD", ""))

	if sed.RequestTimeout, err = parseSecondsEnv("SED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	sed.TokenCachePrefix = getEnv("SED_TOKEN_CACHE_PREFIX", "sed_token:")
	if sed.TokenExpirationBuffer, err = parseSecondsEnv("SED_TOKEN_EXPIRATION_BUFFER", 300*time.Second); err != nil {
		return nil, err
	}
	if sed.TokenDefaultLifetime, err = parseSecondsEnv("SED_TOKEN_DEFAULT_LIFETIME", 3600*time.Second); err != nil {
		return nil, err
	}
	if sed.TokenDefaultLifetime <= sed.TokenExpirationBuffer {
		return nil, errors.New("SED_TOKEN_DEFAULT_LIFETIME deve ser maior que SED_TOKEN_EXPIRATION_BUFFER")
	}
	if sed.TokenRefreshInterval, err = parseSecondsEnv("SED_TOKEN_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}

	if sed.RetryMaxAttempts, err = parseIntEnv("SED_RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if sed.RetryMaxAttempts < 1 {
		return nil, errors.New("SED_RETRY_MAX_ATTEMPTS deve ser >= 1")
	}
	delayMS, err := parseIntEnv("SED_RETRY_DELAY_MS", 1000)
	if err != nil {
		return nil, err
	}
	if delayMS < 0 {
		return nil, errors.New("SED_RETRY_DELAY_MS inválido")
	}
	sed.RetryDelay = time.Duration(delayMS) * time.Millisecond
	if sed.RetryStatusCodes, err = parseIntListEnv("SED_RETRY_STATUS_CODES", []int{500, 502, 503, 504, 408, 429}); err != nil {
		return nil, err
	}

	if sed.CacheTTL, err = parseSecondsEnv("SED_CACHE_TTL", 300*time.Second); err != nil {
		return nil, err
	}
	sed.CachePrefix = getEnv("SED_CACHE_PREFIX", "sed_api:")
	if sed.CachePrefix == sed.TokenCachePrefix {
		return nil, errors.New("SED_CACHE_PREFIX e SED_TOKEN_CACHE_PREFIX devem ser diferentes")
	}
	sed.CacheStore = strings.ToLower(strings.TrimSpace(getEnv("SED_CACHE_STORE", StoreMemory)))
	switch sed.CacheStore {
	case StoreMemory, StoreRedis:
	default:
		return nil, fmt.Errorf("SED_CACHE_STORE inválido: %s", sed.CacheStore)
	}
	if sed.CacheMaxEntries, err = parseIntEnv("SED_CACHE_MAX_ENTRIES", 10000); err != nil {
		return nil, err
	}
	if sed.CacheMaxEntries <= 0 {
		return nil, errors.New("SED_CACHE_MAX_ENTRIES deve ser positivo")
	}

	sed.BusinessErrorFields = splitList(getEnv("SED_BUSINESS_ERROR_FIELDS", "outErro"))

	if sed.LogRequests, err = parseBoolEnv("SED_LOG_REQUESTS", false); err != nil {
		return nil, err
	}
	if sed.LogBodies, err = parseBoolEnv("SED_LOG_BODIES", false); err != nil {
		return nil, err
	}

	return sed, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseSecondsEnv(key string, def time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(val)
	if err != nil || secs < 0 {
		return 0, errors.New(key + " inválido")
	}
	return time.Duration(secs) * time.Second, nil
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.New(key + " inválido")
	}
	return b, nil
}

func parseIntListEnv(key string, def []int) ([]int, error) {
	raw := getEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	var out []int
	for _, part := range splitList(raw) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 100 || n > 599 {
			return nil, fmt.Errorf("%s inválido: %q", key, part)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
