package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/gestao-escolar/internal/auth"
	"github.com/gestaozabele/gestao-escolar/internal/cache"
	"github.com/gestaozabele/gestao-escolar/internal/config"
	"github.com/gestaozabele/gestao-escolar/internal/db"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	repo := tenant.NewRepository(pool)
	service := tenant.NewService(repo)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		if err := runCreate(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar tenant")
		}
	case "list":
		if err := runList(ctx, service); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar tenants")
		}
	case "set-sed":
		if err := runSetSED(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao gravar credenciais SED")
		}
	case "clear-cache":
		if err := runClearCache(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao limpar cache SED")
		}
	case "token":
		if err := runToken(args); err != nil {
			log.Fatal().Err(err).Msg("falha ao emitir token")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "tenant CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  tenant create --slug itapeva --name \"Secretaria de Educação\" --domain itapeva.gestaoescolar.com.br [--settings-file settings.json]")
	fmt.Fprintln(os.Stderr, "  tenant list")
	fmt.Fprintln(os.Stderr, "  tenant set-sed --tenant <uuid> --usuario rede.itapeva --senha-env SED_TENANT_PASSWORD [--diretoria 20801] [--municipio 3522] [--rede 2]")
	fmt.Fprintln(os.Stderr, "  tenant clear-cache --tenant <uuid>")
	fmt.Fprintln(os.Stderr, "  tenant token --subject admin --audience saas --roles SAAS_ADMIN [--tenant <uuid>] [--ttl 15m]")
}

func runCreate(ctx context.Context, service *tenant.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		slug         = fs.String("slug", "", "slug do tenant (ex.: itapeva)")
		name         = fs.String("name", "", "nome exibido")
		domain       = fs.String("domain", "", "domínio completo (ex.: itapeva.gestaoescolar.com.br)")
		settingsFile = fs.String("settings-file", "", "arquivo JSON com configurações visuais")
		settingsJSON = fs.String("settings", "", "JSON literal com configurações visuais")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" || *name == "" || *domain == "" {
		return errors.New("slug, name e domain são obrigatórios")
	}

	settings := map[string]any{}
	if *settingsFile != "" {
		raw, err := os.ReadFile(*settingsFile)
		if err != nil {
			return fmt.Errorf("ler settings-file: %w", err)
		}
		if err := json.Unmarshal(raw, &settings); err != nil {
			return fmt.Errorf("parse settings-file: %w", err)
		}
	} else if *settingsJSON != "" {
		if err := json.Unmarshal([]byte(*settingsJSON), &settings); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	}

	tenantCreated, err := service.Create(ctx, tenant.CreateTenantInput{
		Slug:        *slug,
		DisplayName: *name,
		Domain:      *domain,
		Settings:    settings,
	})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(tenantCreated, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runList(ctx context.Context, service *tenant.Service) error {
	tenants, err := service.List(ctx)
	if err != nil {
		return err
	}

	if len(tenants) == 0 {
		fmt.Println("nenhum tenant cadastrado")
		return nil
	}

	encoded, _ := json.MarshalIndent(tenants, "", "  ")
	fmt.Println(string(encoded))
	return nil
}

// openSED monta o cliente SED com as mesmas configurações da API.
func openSED(ctx context.Context, service *tenant.Service) (*sed.Client, *cache.SEDCaches, error) {
	cfg, err := config.LoadSED()
	if err != nil {
		return nil, nil, err
	}
	caches, err := cache.OpenSED(ctx, *cfg, os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, nil, err
	}
	client, err := sed.New(sed.ConfigFromSED(*cfg), sed.NewTenantResolver(service, sed.DefaultsFromConfig(*cfg)),
		caches.Responses, caches.Tokens, sed.WithLogger(log.Logger))
	if err != nil {
		_ = caches.Close()
		return nil, nil, err
	}
	return client, caches, nil
}

func runSetSED(ctx context.Context, service *tenant.Service, args []string) error {
	fs := flag.NewFlagSet("set-sed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		tenantID  = fs.String("tenant", "", "UUID do tenant")
		usuario   = fs.String("usuario", "", "usuário de integração da SED")
		senhaEnv  = fs.String("senha-env", "SED_TENANT_PASSWORD", "variável de ambiente com a senha")
		diretoria = fs.String("diretoria", "", "código da diretoria de ensino")
		municipio = fs.String("municipio", "", "código do município na SED")
		rede      = fs.String("rede", "", "código da rede de ensino")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := uuid.Parse(strings.TrimSpace(*tenantID))
	if err != nil {
		return errors.New("tenant inválido")
	}
	senha := os.Getenv(*senhaEnv)
	if strings.TrimSpace(*usuario) == "" || senha == "" {
		return fmt.Errorf("usuario e %s são obrigatórios", *senhaEnv)
	}

	client, caches, err := openSED(ctx, service)
	if err != nil {
		return err
	}
	defer caches.Close()

	if err := client.VerifyCredentials(ctx, sed.CredentialSet{
		TenantID:      id.String(),
		Username:      strings.TrimSpace(*usuario),
		Password:      senha,
		DiretoriaID:   *diretoria,
		MunicipioID:   *municipio,
		RedeEnsinoCod: *rede,
	}); err != nil {
		return err
	}

	cred, err := service.SaveValidatedSEDCredentials(ctx, tenant.SaveSEDCredentialsInput{
		TenantID:      id,
		Usuario:       *usuario,
		Senha:         senha,
		DiretoriaID:   *diretoria,
		MunicipioID:   *municipio,
		RedeEnsinoCod: *rede,
	})
	if err != nil {
		return err
	}

	removed, err := client.ClearTenantCaches(ctx, id.String())
	if err != nil {
		return err
	}
	if !caches.Shared() {
		log.Warn().Msg("cache em memória: reinicie a API para descartar respostas antigas")
	}

	log.Info().Str("tenant_id", id.String()).Str("credencial_id", cred.ID.String()).Int("cache_removidas", removed).Msg("credenciais SED atualizadas")
	return nil
}

func runClearCache(ctx context.Context, service *tenant.Service, args []string) error {
	fs := flag.NewFlagSet("clear-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	tenantID := fs.String("tenant", "", "UUID do tenant; vazio limpa tudo")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, caches, err := openSED(ctx, service)
	if err != nil {
		return err
	}
	defer caches.Close()

	if strings.TrimSpace(*tenantID) == "" {
		return client.ClearAllCaches(ctx)
	}
	removed, err := client.ClearTenantCaches(ctx, *tenantID)
	if err != nil {
		return err
	}
	log.Info().Str("tenant_id", *tenantID).Int("removidas", removed).Msg("cache do tenant limpo")
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		subject  = fs.String("subject", "", "subject do token")
		audience = fs.String("audience", "saas", "audience (saas, escola)")
		roles    = fs.String("roles", "", "papéis separados por vírgula")
		tenantID = fs.String("tenant", "", "restringe o token a um tenant")
		ttl      = fs.Duration("ttl", 15*time.Minute, "validade do token")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if len(secret) < 32 {
		return errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}
	if strings.TrimSpace(*subject) == "" {
		return errors.New("subject obrigatório")
	}

	var roleList []string
	for _, role := range strings.Split(*roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roleList = append(roleList, role)
		}
	}

	token, _, err := auth.NewJWTManager(secret, *ttl).GenerateAccessToken(*subject, *audience, *tenantID, roleList)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
