// mock-geo serves ipinfo-style geolocation responses for local development.
// Set geo.base_url to this server and pick a behavior with MODE:
//
//	ok    deterministic location per IP (default)
//	slow  same as ok after a 3s delay
//	fail  always 500, to exercise the circuit breaker
package main

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

var requestCount atomic.Int64

type location struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Postal  string `json:"postal"`
}

var locations = []location{
	{City: "São Paulo", Region: "São Paulo", Country: "BR", Postal: "01000-000"},
	{City: "Rio de Janeiro", Region: "Rio de Janeiro", Country: "BR", Postal: "20000-000"},
	{City: "Belo Horizonte", Region: "Minas Gerais", Country: "BR", Postal: "30100-000"},
	{City: "Curitiba", Region: "Paraná", Country: "BR", Postal: "80000-000"},
	{City: "Lisbon", Region: "Lisbon", Country: "PT", Postal: "1000-001"},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	mode := os.Getenv("MODE")
	if mode == "" {
		mode = "ok"
	}

	r := chi.NewRouter()
	r.Get("/{ip}/json", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		ip := chi.URLParam(r, "ip")

		switch mode {
		case "fail":
			logger.Info("lookup", "n", count, "ip", ip, "status", http.StatusInternalServerError)
			respond(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		case "slow":
			time.Sleep(3 * time.Second)
		}

		loc := locationFor(ip)
		logger.Info("lookup", "n", count, "ip", ip, "status", http.StatusOK, "city", loc.City)
		respond(w, http.StatusOK, loc)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	logger.Info("mock geo server starting", "port", port, "mode", mode)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// locationFor maps an IP to a fixed location so repeated lookups agree.
func locationFor(ip string) location {
	h := fnv.New32a()
	h.Write([]byte(ip))
	loc := locations[h.Sum32()%uint32(len(locations))]
	loc.IP = ip
	return loc
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
