package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/veriline/veriline-backend/api/responses"
	"github.com/veriline/veriline-backend/api/validators"
	"github.com/veriline/veriline-backend/internal/catalog"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/logger"
)

// Suggester ranks catalog items against a partial query.
type Suggester interface {
	Suggest(ctx context.Context, query, serviceLine string, limit int) ([]catalog.Suggestion, error)
}

// CatalogSuggestions serves ranked canonical item suggestions for picker UIs.
func CatalogSuggestions(suggester Suggester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if suggester == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "query parameter q is required"))
			return
		}
		serviceLine := strings.TrimSpace(r.URL.Query().Get("serviceLine"))
		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		suggestions, err := suggester.Suggest(r.Context(), query, serviceLine, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if suggestions == nil {
			suggestions = []catalog.Suggestion{}
		}
		responses.WriteSuccess(w, map[string]any{"suggestions": suggestions})
	}
}
