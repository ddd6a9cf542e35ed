package edition

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the registry API. Mount it at
// /api/edition/v1 behind authz.IdentityMiddleware; requests without an
// identity act as the zero address and fail every owner-gated operation.
func Router(reg *Registry, cfg *EditionConfig) chi.Router {
	r := chi.NewRouter()

	r.Get("/", InfoHandler(reg))
	r.Post("/contract", DeployHandler(reg, cfg))
	r.Post("/mint", MintHandler(reg))
	r.Patch("/metadata", UpdateMetadataHandler(reg))
	r.Get("/fields/{field}", GetFieldHandler(reg))
	r.Put("/fields/{field}", UpdateFieldHandler(reg))
	r.Get("/exists", ExistsHandler(reg))
	r.Route("/tokens/{id}", func(r chi.Router) {
		r.Get("/uri", TokenURIHandler(reg))
		r.Get("/metadata", TokenMetadataHandler(reg))
		r.Get("/owner", OwnerOfHandler(reg))
		r.Post("/transfer", TransferHandler(reg))
	})
	r.Get("/balances/{address}", BalanceHandler(reg))
	r.Post("/ownership", TransferOwnershipHandler(reg))
	r.Get("/events", ListEventsHandler(reg))

	return r
}
