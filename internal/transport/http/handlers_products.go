package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/attestation"
	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/org"
	"custodia/internal/platform/config"
	"custodia/internal/transfer"
	"custodia/internal/verification"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// ProductsHandler serves the product surface: creation, listing, transfers,
// membership proofs and the public verification lookup.
type ProductsHandler struct {
	inventory *inventory.Service
	transfers *transfer.Service
	proofs    *attestation.Service
	gate      *verification.Service
	orgs      *org.Service
	audit     *audit.Publisher
	logger    *slog.Logger
}

func NewProductsHandler(
	inv *inventory.Service,
	transfers *transfer.Service,
	proofs *attestation.Service,
	gate *verification.Service,
	orgs *org.Service,
	publisher *audit.Publisher,
	logger *slog.Logger,
) *ProductsHandler {
	return &ProductsHandler{
		inventory: inv,
		transfers: transfers,
		proofs:    proofs,
		gate:      gate,
		orgs:      orgs,
		audit:     publisher,
		logger:    logger,
	}
}

// RegisterPublic mounts the unauthenticated lookup and consumer verification.
func (h *ProductsHandler) RegisterPublic(r chi.Router) {
	r.Get("/api/products/{id}", h.HandleLookup)
	r.Post("/api/products/{id}/verify", h.HandleVerify)
}

// RegisterProtected mounts the custody operations.
func (h *ProductsHandler) RegisterProtected(r chi.Router) {
	r.Post("/api/products", h.HandleCreate)
	r.Get("/api/products", h.HandleList)
	r.Post("/api/products/batch", h.HandleCreateBatch)
	r.Get("/api/products/batch/list", h.HandleListBatches)
	r.Post("/api/products/{id}/transfer", h.HandleTransfer)
	r.Post("/api/products/batch/{id}/transfer", h.HandleTransferBatch)
	r.Post("/api/products/{id}/zk-proof", h.HandleGenerateProof)
}

func productID(r *http.Request) (id.ProductID, error) {
	pid, err := id.ParseProductID(chi.URLParam(r, "id"))
	if err != nil {
		return id.ProductID{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid product id")
	}
	return pid, nil
}

type createRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ManufactureDate string `json:"manufactureDate"`
	Quantity        int    `json:"quantity"`
}

func (h *ProductsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createRequest](w, r)
	if !ok {
		return
	}
	caller := requestcontext.OrgID(ctx)
	products, err := h.inventory.CreateProducts(ctx, caller, requestcontext.OrgRole(ctx), inventory.CreateInput{
		Spec: inventory.ProductSpec{
			Name:            req.Name,
			Description:     req.Description,
			ManufactureDate: req.ManufactureDate,
		},
		Quantity: req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	for _, p := range products {
		h.audit.Emit(ctx, audit.Event{
			Kind:      audit.KindProductCreated,
			ActorID:   caller.String(),
			ProductID: p.ID.String(),
			AnchorID:  p.MintAnchorID,
		})
	}
	httputil.WriteJSON(w, http.StatusCreated, products)
}

func (h *ProductsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := inventory.Filter{OwnedBy: requestcontext.OrgID(ctx)}
	if raw := r.URL.Query().Get("sentBy"); raw != "" {
		sender, err := id.ParseOrgID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid sentBy organization id"))
			return
		}
		// Received-by-caller view: history, not current custody.
		filter = inventory.Filter{SentBy: sender, ReceivedBy: requestcontext.OrgID(ctx)}
	}
	if raw := r.URL.Query().Get("batchId"); raw != "" {
		bid, err := id.ParseBatchID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid batch id"))
			return
		}
		filter.BatchID = bid
	}
	products, err := h.inventory.List(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

type createBatchRequest struct {
	MetadataURI string                  `json:"metadataURI"`
	Products    []inventory.ProductSpec `json:"products"`
	Quantity    int                     `json:"quantity"`
}

type batchResponse struct {
	Batch    *inventory.Batch     `json:"batch"`
	Products []*inventory.Product `json:"products"`
}

func (h *ProductsHandler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createBatchRequest](w, r)
	if !ok {
		return
	}
	caller := requestcontext.OrgID(ctx)
	batch, members, err := h.inventory.CreateBatch(ctx, caller, requestcontext.OrgRole(ctx), inventory.BatchInput{
		MetadataURI: req.MetadataURI,
		Specs:       req.Products,
		Quantity:    req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(ctx, audit.Event{
		Kind:     audit.KindBatchMinted,
		ActorID:  caller.String(),
		BatchID:  batch.ID.String(),
		AnchorID: batch.AnchorID,
	})
	httputil.WriteJSON(w, http.StatusCreated, batchResponse{Batch: batch, Products: members})
}

func (h *ProductsHandler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batches, err := h.inventory.ListBatches(ctx, requestcontext.OrgID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batches)
}

type transferRequest struct {
	ToAddress string `json:"toAddress"`
	Location  string `json:"location"`
	Quantity  int    `json:"quantity"`
}

func (h *ProductsHandler) receiver(r *http.Request, raw string) (id.OrgID, error) {
	addr, err := id.ParseAddress(raw)
	if err != nil {
		return id.OrgID{}, dErrors.New(dErrors.CodeInvalidArgument, "toAddress must be a ledger address")
	}
	receiver, err := h.orgs.GetByAddress(r.Context(), addr)
	if err != nil {
		return id.OrgID{}, err
	}
	return receiver.ID, nil
}

func (h *ProductsHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid, err := productID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[transferRequest](w, r)
	if !ok {
		return
	}
	to, err := h.receiver(r, req.ToAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.OrgID(ctx)

	// The quantity flow moves N arbitrary held products; quantity is
	// clamped at this boundary, the creation cap stays the protocol's.
	if req.Quantity > 1 {
		qty := min(req.Quantity, config.MaxTransferQuantity)
		result, err := h.transfers.TransferQuantity(ctx, caller, to, req.Location, qty)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.transfers.Transfer(ctx, caller, pid, to, req.Location)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type batchTransferRequest struct {
	ToAddress string `json:"toAddress"`
	Location  string `json:"location"`
}

func (h *ProductsHandler) HandleTransferBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bid, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid batch id"))
		return
	}
	req, ok := httputil.Decode[batchTransferRequest](w, r)
	if !ok {
		return
	}
	to, err := h.receiver(r, req.ToAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.transfers.TransferBatch(ctx, requestcontext.OrgID(ctx), bid, to, req.Location)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *ProductsHandler) HandleGenerateProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid, err := productID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.proofs.GenerateProof(ctx, requestcontext.OrgID(ctx), pid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *ProductsHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	pid, err := productID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.gate.Lookup(r.Context(), pid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type verifyRequest struct {
	Signature string `json:"signature"`
}

func (h *ProductsHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	pid, err := productID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[verifyRequest](w, r)
	if !ok {
		return
	}
	product, err := h.gate.VerifyAsCustomer(r.Context(), pid, req.Signature)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}
