package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestaozabele/gestao-escolar/internal/http/middleware"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

// ListTenants devolve todos os tenants cadastrados (SaaS admin).
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("listar tenants")
		WriteError(w, http.StatusInternalServerError, sed.KindUnexpected, "não foi possível listar tenants", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// CreateTenant registra um novo tenant (SaaS admin).
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Slug     string         `json:"slug"`
		Nome     string         `json:"display_name"`
		Domain   string         `json:"domain"`
		Settings map[string]any `json:"settings"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.Slug) == "" || strings.TrimSpace(payload.Nome) == "" || strings.TrimSpace(payload.Domain) == "" {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "slug, display_name e domain são obrigatórios", nil)
		return
	}

	tenantCreated, err := h.tenants.Create(r.Context(), tenant.CreateTenantInput{
		Slug:        payload.Slug,
		DisplayName: payload.Nome,
		Domain:      payload.Domain,
		Settings:    payload.Settings,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			WriteError(w, http.StatusConflict, sed.KindInvalidParameter, "slug ou domínio já cadastrados", nil)
			return
		}
		log.Error().Err(err).Str("slug", payload.Slug).Msg("criar tenant")
		WriteError(w, http.StatusInternalServerError, sed.KindUnexpected, "não foi possível criar tenant", nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"tenant": tenantCreated})
}

// TenantConfig devolve informações públicas do município identificado pelo host.
func (h *Handler) TenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := httpmiddleware.GetTenant(r.Context())
	if tenantID == "" {
		WriteError(w, http.StatusNotFound, sed.KindConfiguration, "tenant não configurado para este domínio", nil)
		return
	}

	tenantInfo, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			WriteError(w, http.StatusNotFound, sed.KindConfiguration, "tenant não configurado para este domínio", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, sed.KindUnexpected, "não foi possível carregar tenant", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"id":           tenantInfo.ID,
		"slug":         tenantInfo.Slug,
		"display_name": tenantInfo.DisplayName,
		"domain":       tenantInfo.Domain,
	})
}

// UpdateTenantSED valida na SED e grava novas credenciais do município.
func (h *Handler) UpdateTenantSED(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseUUIDParam(r, "tenantID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "tenant inválido", nil)
		return
	}

	var payload struct {
		Usuario       string `json:"usuario"`
		Senha         string `json:"senha"`
		DiretoriaID   string `json:"diretoria_id"`
		MunicipioID   string `json:"municipio_id"`
		RedeEnsinoCod string `json:"rede_ensino_cod"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "JSON inválido", nil)
		return
	}
	if strings.TrimSpace(payload.Usuario) == "" || payload.Senha == "" {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "usuario e senha são obrigatórios", nil)
		return
	}

	if _, err := h.tenants.Get(r.Context(), tenantID.String()); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			WriteError(w, http.StatusNotFound, sed.KindConfiguration, "tenant não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, sed.KindUnexpected, "não foi possível carregar tenant", nil)
		return
	}

	if err := h.sed.VerifyCredentials(r.Context(), sed.CredentialSet{
		TenantID:      tenantID.String(),
		Username:      strings.TrimSpace(payload.Usuario),
		Password:      payload.Senha,
		DiretoriaID:   payload.DiretoriaID,
		MunicipioID:   payload.MunicipioID,
		RedeEnsinoCod: payload.RedeEnsinoCod,
	}); err != nil {
		WriteSEDError(w, err)
		return
	}

	cred, err := h.tenants.SaveValidatedSEDCredentials(r.Context(), tenant.SaveSEDCredentialsInput{
		TenantID:      tenantID,
		Usuario:       payload.Usuario,
		Senha:         payload.Senha,
		DiretoriaID:   payload.DiretoriaID,
		MunicipioID:   payload.MunicipioID,
		RedeEnsinoCod: payload.RedeEnsinoCod,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("gravar credenciais SED")
		WriteError(w, http.StatusInternalServerError, sed.KindUnexpected, "não foi possível gravar credenciais", nil)
		return
	}

	removed, err := h.sed.ClearTenantCaches(r.Context(), tenantID.String())
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("limpar cache do tenant após troca de credencial")
	}

	WriteJSON(w, http.StatusOK, map[string]any{"credencial": cred, "cache_removidas": removed})
}

// ClearTenantCache remove respostas e tokens SED de um município.
func (h *Handler) ClearTenantCache(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseUUIDParam(r, "tenantID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "tenant inválido", nil)
		return
	}

	removed, err := h.sed.ClearTenantCaches(r.Context(), tenantID.String())
	if err != nil {
		WriteSEDError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"removidas": removed})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
}
