// Package api exposes the storefront contract's entry points over HTTP for
// the dev host. Callers declare their ledger identity and attached deposit in
// headers; verifying signatures is the platform's job, not the host's.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/pipar-network/storefront/internal/httputil"
	"github.com/pipar-network/storefront/internal/ledger"
	"github.com/pipar-network/storefront/internal/metrics"
	"github.com/pipar-network/storefront/pkg/logger"
	"github.com/pipar-network/storefront/services/storefront"
)

// Identity and deposit headers for declared-caller dispatch.
const (
	HeaderPredecessor = "X-Ledger-Predecessor"
	HeaderSigner      = "X-Ledger-Signer"
	HeaderSignerKey   = "X-Ledger-Signer-Key"
	HeaderDeposit     = "X-Ledger-Deposit"
)

// Server hosts the contract API.
type Server struct {
	contract *storefront.Contract
	runtime  *ledger.LocalRuntime
	limiter  *rate.Limiter
	log      *logger.Logger
	router   *mux.Router
}

// NewServer wires the API around a contract and its local runtime.
func NewServer(contract *storefront.Contract, runtime *ledger.LocalRuntime, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("api")
	}
	s := &Server{
		contract: contract,
		runtime:  runtime,
		limiter:  rate.NewLimiter(rate.Limit(50), 100),
		log:      log,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.observe, s.throttle)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	v1.HandleFunc("/products", s.handleAddProduct).Methods(http.MethodPost)
	v1.HandleFunc("/products/count", s.handleProductCount).Methods(http.MethodGet)
	v1.HandleFunc("/products/{id}/restock", s.handleRestock).Methods(http.MethodPost)
	v1.HandleFunc("/purchases", s.handlePurchase).Methods(http.MethodPost)
	v1.HandleFunc("/rewards", s.handleReward).Methods(http.MethodPost)
	v1.HandleFunc("/token", s.handleTokenInfo).Methods(http.MethodGet)
	v1.HandleFunc("/token/deploy", s.handleDeployToken).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callContext builds the ledger call environment from the declared headers
// and settles the attached deposit onto the contract account. The returned
// release function reverses the deposit; dispatch calls it when the entry
// point fails, matching the platform returning deposits of failed calls.
func (s *Server) callContext(r *http.Request) (ledger.CallContext, func(), error) {
	predecessor := ledger.AccountID(r.Header.Get(HeaderPredecessor))
	if !predecessor.Valid() {
		return ledger.CallContext{}, nil, errors.New("missing or invalid " + HeaderPredecessor + " header")
	}
	signer := ledger.AccountID(r.Header.Get(HeaderSigner))
	if signer == "" {
		signer = predecessor
	}

	var attached uint64
	if raw := r.Header.Get(HeaderDeposit); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ledger.CallContext{}, nil, errors.New("invalid " + HeaderDeposit + " header")
		}
		attached = parsed
	}

	if err := s.runtime.SettleAttachedDeposit(predecessor, s.contract.Account(), attached); err != nil {
		return ledger.CallContext{}, nil, err
	}
	release := func() {
		if attached > 0 {
			if err := s.runtime.SettleAttachedDeposit(s.contract.Account(), predecessor, attached); err != nil {
				s.log.WithError(err).WithField("caller", predecessor).Error("deposit return failed")
			}
		}
	}

	return ledger.CallContext{
		Contract:    s.contract.Account(),
		Predecessor: predecessor,
		Signer:      signer,
		SignerKey:   r.Header.Get(HeaderSignerKey),
		Attached:    attached,
		BlockTime:   time.Now().UTC(),
	}, release, nil
}

// writeContractError maps contract errors onto HTTP statuses.
func writeContractError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storefront.ErrUnauthorized),
		errors.Is(err, storefront.ErrNoAuthDeposit):
		status = http.StatusForbidden
	case errors.Is(err, storefront.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storefront.ErrTokenAlreadyDeployed),
		errors.Is(err, storefront.ErrTokenDeployInProgress),
		errors.Is(err, storefront.ErrDuplicateProduct):
		status = http.StatusConflict
	case errors.Is(err, storefront.ErrInsufficientPayment),
		errors.Is(err, storefront.ErrInsufficientStock),
		errors.Is(err, storefront.ErrInsufficientDeposit),
		errors.Is(err, storefront.ErrQuantityMismatch),
		errors.Is(err, storefront.ErrArithmeticOverflow),
		errors.Is(err, storefront.ErrTokenNotDeployed),
		errors.Is(err, storefront.ErrRewardNotEnabled):
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteError(w, status, err.Error())
}
