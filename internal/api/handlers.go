package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pipar-network/storefront/internal/httputil"
	"github.com/pipar-network/storefront/internal/metrics"
	"github.com/pipar-network/storefront/services/storefront"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.contract.GetStoreProducts())
}

func (s *Server) handleProductCount(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]int{"count": s.contract.GetProductCount()})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]any{
		"has_token":  s.contract.HasToken(),
		"status":     s.contract.TokenDeployStatus(),
		"token_cost": s.contract.GetTokenCost(),
	})
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var input storefront.ProductInput
	if err := httputil.ReadJSON(r, &input); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, release, err := s.callContext(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := s.contract.AddProduct(r.Context(), call, input)
	metrics.ObserveEntryCall("add_product", err)
	if err != nil {
		release()
		writeContractError(w, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req storefront.PurchaseRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, release, err := s.callContext(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.contract.StorePurchaseProduct(r.Context(), call, req)
	metrics.ObserveEntryCall("store_purchase_product", err)
	if err != nil {
		release()
		writeContractError(w, err)
		return
	}
	httputil.WriteSuccess(w, receipt)
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity uint64 `json:"quantity"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	productID := mux.Vars(r)["id"]

	call, release, err := s.callContext(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := s.contract.PlusProduct(r.Context(), call, productID, req.Quantity)
	metrics.ObserveEntryCall("plus_product", err)
	if err != nil {
		release()
		writeContractError(w, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

func (s *Server) handleDeployToken(w http.ResponseWriter, r *http.Request) {
	var req storefront.TokenDeployRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, release, err := s.callContext(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.contract.DeployToken(r.Context(), call, req)
	metrics.ObserveEntryCall("deploy_token", err)
	if err != nil {
		release()
		writeContractError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"status": s.contract.TokenDeployStatus(),
	})
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	var req storefront.RewardRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, release, err := s.callContext(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.contract.RewardWithToken(r.Context(), call, req)
	metrics.ObserveEntryCall("reward_with_token", err)
	if err != nil {
		release()
		writeContractError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "issued"})
}
