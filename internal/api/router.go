package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campushq/campusledger/internal/auth"
)

const kindPattern = "{kind:faculties|degree-levels|year-levels}"

// NewRouter wires the full REST surface. Only /health, /metrics and the
// login endpoint are reachable without a bearer token.
func NewRouter(h *Handler, authority *auth.Authority) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(MetricsMiddleware)
	apiV1.HandleFunc("/auth/login", h.Login).Methods("POST")

	p := apiV1.PathPrefix("/").Subrouter()
	p.Use(auth.Middleware(authority))

	// university/*: reference tables
	p.HandleFunc("/university/"+kindPattern, h.ListReference).Methods("GET")
	p.HandleFunc("/university/"+kindPattern, h.CreateReference).Methods("POST")
	p.HandleFunc("/university/"+kindPattern+"/{id}", h.UpdateReference).Methods("PUT")
	p.HandleFunc("/university/"+kindPattern+"/{id}", h.DeleteReference).Methods("DELETE")

	// university-staff/*: job positions and staff accounts
	p.HandleFunc("/university-staff/job-positions", h.ListJobPositions).Methods("GET")
	p.HandleFunc("/university-staff/job-positions", h.CreateJobPosition).Methods("POST")
	p.HandleFunc("/university-staff/job-positions/{id}", h.UpdateJobPosition).Methods("PUT")
	p.HandleFunc("/university-staff/job-positions/{id}", h.DeleteJobPosition).Methods("DELETE")
	p.HandleFunc("/university-staff/staff", h.ListStaff).Methods("GET")
	p.HandleFunc("/university-staff/staff", h.CreateStaff).Methods("POST")
	p.HandleFunc("/university-staff/staff/{id}", h.GetStaff).Methods("GET")
	p.HandleFunc("/university-staff/staff/{id}", h.UpdateStaff).Methods("PUT")
	p.HandleFunc("/university-staff/staff/{id}", h.DeleteStaff).Methods("DELETE")

	// student/*
	p.HandleFunc("/student/students", h.ListStudents).Methods("GET")
	p.HandleFunc("/student/students", h.CreateStudent).Methods("POST")
	p.HandleFunc("/student/students/waited-count", h.WaitedCount).Methods("GET")
	p.HandleFunc("/student/students/{id}", h.GetStudent).Methods("GET")
	p.HandleFunc("/student/students/{id}/status", h.UpdateStudentStatus).Methods("PATCH")

	// coins/*
	p.HandleFunc("/coins/rules", h.ListCoinRules).Methods("GET")
	p.HandleFunc("/coins/rules", h.CreateCoinRule).Methods("POST")
	p.HandleFunc("/coins/rules/{id}", h.GetCoinRule).Methods("GET")
	p.HandleFunc("/coins/rules/{id}", h.UpdateCoinRule).Methods("PUT")
	p.HandleFunc("/coins/rules/{id}/archive", h.ArchiveCoinRule).Methods("POST")
	p.HandleFunc("/coins/rules/{id}/activate", h.ActivateCoinRule).Methods("POST")
	p.HandleFunc("/coins/transactions", h.ListTransactions).Methods("GET")
	p.HandleFunc("/coins/transactions/issue", h.IssueCoins).Methods("POST")
	p.HandleFunc("/coins/transactions/{id}/delete", h.DeleteTransaction).Methods("POST")
	p.HandleFunc("/coins/deletion-audits", h.ListDeletionAudits).Methods("GET")

	// market/*
	p.HandleFunc("/market/products", h.ListProducts).Methods("GET")
	p.HandleFunc("/market/products", h.CreateProduct).Methods("POST")
	p.HandleFunc("/market/products/{id}", h.GetProduct).Methods("GET")
	p.HandleFunc("/market/products/{id}", h.UpdateProduct).Methods("PUT")
	p.HandleFunc("/market/products/{id}/archive", h.ArchiveProduct).Methods("POST")
	p.HandleFunc("/market/products/{id}/stock", h.RestockProduct).Methods("PATCH")
	p.HandleFunc("/market/orders", h.ListOrders).Methods("GET")
	p.HandleFunc("/market/orders", h.CreateOrder).Methods("POST")
	p.HandleFunc("/market/orders/{id}", h.GetOrder).Methods("GET")
	p.HandleFunc("/market/orders/{id}/status", h.UpdateOrderStatus).Methods("PATCH")
	p.HandleFunc("/market/redemption-audits", h.ListRedemptionAudits).Methods("GET")

	return r
}
