package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/attestation"
	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/jwttoken"
	"custodia/internal/ledger"
	"custodia/internal/org"
	orghandler "custodia/internal/org/handler"
	"custodia/internal/partnership"
	parthandler "custodia/internal/partnership/handler"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/transfer"
	"custodia/internal/verification"
	"custodia/pkg/platform/keyedlock"
)

var testMetrics = metrics.New()

type account struct {
	ID      string
	Address string
	Token   string
}

type RouterSuite struct {
	suite.Suite
	server *httptest.Server

	mfr  account
	dist account
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	tokens := jwttoken.NewService("test-signing-key", "custodia-test")
	publisher := audit.NewPublisher(256)
	locks := keyedlock.New()

	submitter := ledger.NewSubmitter(ledger.NewMemory(), ledger.NewMemoryKeyStore(),
		config.LedgerConfig{SubmitTimeout: time.Second, MaxRetries: 2}, logger, testMetrics)

	orgSvc := org.NewService(org.NewInMemoryStore(), tokens, logger)
	partnerSvc := partnership.NewService(partnership.NewInMemoryStore(), logger)
	products := inventory.NewInMemoryStore()
	inventorySvc := inventory.NewService(products, submitter, orgSvc, logger, testMetrics)
	transferSvc := transfer.NewService(products, partnerSvc, orgSvc, submitter, locks, publisher, logger, testMetrics)
	proofSvc := attestation.NewService(products, attestation.NewInMemoryStore(), locks, publisher, logger, testMetrics)
	gateSvc := verification.NewService(products, orgSvc, submitter, locks, publisher, logger, testMetrics)

	router := NewRouter(Deps{
		Org:      orghandler.New(orgSvc, logger),
		Partners: parthandler.New(partnerSvc, publisher, logger),
		Products: NewProductsHandler(inventorySvc, transferSvc, proofSvc, gateSvc, orgSvc, publisher, logger),
		Auth:     tokens,
		Logger:   logger,
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)

	s.mfr = s.register("Alma", "manufacturer")
	s.dist = s.register("Birk", "distributor")
}

func (s *RouterSuite) do(method, path, token string, body any) (*http.Response, map[string]any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (s *RouterSuite) doList(method, path, token string, body any) (*http.Response, []map[string]any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded []map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *RouterSuite) register(name, role string) account {
	resp, body := s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":        name,
		"companyName": name + " Co",
		"email":       name + "@custody.test",
		"password":    "strongpassword",
		"role":        role,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	orgBody := body["organization"].(map[string]any)
	return account{
		ID:      orgBody["id"].(string),
		Address: orgBody["address"].(string),
		Token:   body["token"].(string),
	}
}

func (s *RouterSuite) partner() {
	resp, body := s.do(http.MethodPost, "/api/partnerships/request", s.mfr.Token,
		map[string]any{"receiverId": s.dist.ID})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	pid := body["id"].(string)

	resp, _ = s.do(http.MethodPost, "/api/partnerships/"+pid+"/accept", s.dist.Token,
		map[string]any{"status": "accepted"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) createProduct() string {
	resp, _ := s.do(http.MethodPost, "/api/products", s.mfr.Token, map[string]any{
		"name": "tonic", "description": "first pressing", "manufactureDate": "2026-04-01", "quantity": 1,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	_, list := s.doList(http.MethodGet, "/api/products", s.mfr.Token, nil)
	s.Require().NotEmpty(list)
	return list[len(list)-1]["id"].(string)
}

func (s *RouterSuite) TestAuthFlow() {
	s.Run("login returns a fresh token", func() {
		resp, body := s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
			"email": "Alma@custody.test", "password": "strongpassword",
		})
		s.Equal(http.StatusOK, resp.StatusCode)
		s.NotEmpty(body["token"])
		s.NotEmpty(body["dashboardPath"])
	})

	s.Run("bad password is rejected uniformly", func() {
		resp, body := s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
			"email": "Alma@custody.test", "password": "wrong-password",
		})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("unauthenticated", body["error"])
	})

	s.Run("protected routes demand a token", func() {
		resp, _ := s.do(http.MethodGet, "/api/auth/users", "", nil)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("me restores the caller's session", func() {
		resp, body := s.do(http.MethodGet, "/api/auth/me", s.mfr.Token, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		orgBody := body["organization"].(map[string]any)
		s.Equal(s.mfr.ID, orgBody["id"])
		s.Equal("/manufacturer", body["dashboardPath"])

		resp, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("directory hides the caller", func() {
		resp, list := s.doList(http.MethodGet, "/api/auth/users", s.mfr.Token, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Require().Len(list, 1)
		s.Equal(s.dist.ID, list[0]["id"])
	})
}

func (s *RouterSuite) TestProductLifecycle() {
	s.partner()
	pid := s.createProduct()

	s.Run("transfer moves custody and returns manufacturer contact", func() {
		resp, body := s.do(http.MethodPost, "/api/products/"+pid+"/transfer", s.mfr.Token,
			map[string]any{"toAddress": s.dist.Address, "location": "harbor 2"})
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		product := body["product"].(map[string]any)
		s.Equal(s.dist.ID, product["custodianId"])
		s.NotNil(body["manufacturer"])
	})

	s.Run("public lookup reports authentic", func() {
		resp, body := s.do(http.MethodGet, "/api/products/"+pid, "", nil)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Equal(true, body["authentic"])
	})

	s.Run("customer verification is terminal", func() {
		resp, _ := s.do(http.MethodPost, "/api/products/"+pid+"/verify", "",
			map[string]any{"signature": "0xsigned"})
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		resp, body := s.do(http.MethodPost, "/api/products/"+pid+"/verify", "",
			map[string]any{"signature": "0xsigned"})
		s.Equal(http.StatusConflict, resp.StatusCode)
		s.Equal("invalid_state", body["error"])

		resp, body = s.do(http.MethodPost, "/api/products/"+pid+"/transfer", s.dist.Token,
			map[string]any{"toAddress": s.mfr.Address, "location": "returns"})
		s.Equal(http.StatusConflict, resp.StatusCode)
		s.Equal("invalid_state", body["error"])
	})
}

func (s *RouterSuite) TestBatchLifecycle() {
	s.partner()

	resp, body := s.do(http.MethodPost, "/api/products/batch", s.mfr.Token, map[string]any{
		"products": []map[string]any{{"name": "ampoule"}},
		"quantity": 3,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	batch := body["batch"].(map[string]any)
	members := body["products"].([]any)
	s.Require().Len(members, 3)
	s.NotEmpty(batch["nftTokenId"])

	s.Run("batch list shows the mint", func() {
		resp, list := s.doList(http.MethodGet, "/api/products/batch/list", s.mfr.Token, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Require().Len(list, 1)
		s.Equal(batch["id"], list[0]["id"])
	})

	s.Run("proof generation is manufacturer-only and at-most-once", func() {
		memberID := members[0].(map[string]any)["id"].(string)

		resp, _ := s.do(http.MethodPost, "/api/products/"+memberID+"/zk-proof", s.dist.Token, map[string]any{})
		s.Equal(http.StatusForbidden, resp.StatusCode)

		resp, proof := s.do(http.MethodPost, "/api/products/"+memberID+"/zk-proof", s.mfr.Token, map[string]any{})
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		s.NotNil(proof["proof"])

		resp, errBody := s.do(http.MethodPost, "/api/products/"+memberID+"/zk-proof", s.mfr.Token, map[string]any{})
		s.Equal(http.StatusConflict, resp.StatusCode)
		s.Equal("invalid_state", errBody["error"])
	})

	s.Run("batch transfer moves every member", func() {
		batchID := batch["id"].(string)
		resp, result := s.do(http.MethodPost, "/api/products/batch/"+batchID+"/transfer", s.mfr.Token,
			map[string]any{"toAddress": s.dist.Address, "location": "truck 1"})
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Len(result["transferred"].([]any), 3)
	})
}

func (s *RouterSuite) TestQuantityTransfer() {
	s.partner()
	resp, _ := s.do(http.MethodPost, "/api/products", s.mfr.Token, map[string]any{
		"name": "crate", "quantity": 5,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	_, list := s.doList(http.MethodGet, "/api/products", s.mfr.Token, nil)
	s.Require().Len(list, 5)
	anyID := list[0]["id"].(string)

	resp, result := s.do(http.MethodPost, fmt.Sprintf("/api/products/%s/transfer", anyID), s.mfr.Token,
		map[string]any{"toAddress": s.dist.Address, "location": "pallet", "quantity": 3})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Len(result["transferred"].([]any), 3)

	_, remaining := s.doList(http.MethodGet, "/api/products", s.mfr.Token, nil)
	s.Len(remaining, 2)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, err = s.server.Client().Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
