package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"strings"
	"sync"
	"time"

	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/SiddharthManjul/DiffiChain/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Server exposes one ledger over a raw TCP net/rpc port for the console and
// an HTTP port carrying JSON-RPC, the WebSocket hub and the state chart.
type Server struct {
	ledger  *ledger.NoteLedger
	handler *LedgerRPCHandler
	hub     *Hub
}

// NewServer builds the transport stack around a ledger. The hub must be the
// one the ledger was constructed with so subscribers see every mutation.
func NewServer(l *ledger.NoteLedger, hub *Hub) *Server {
	return &Server{
		ledger:  l,
		handler: NewLedgerRPCHandler(l),
		hub:     hub,
	}
}

// NewHub creates the WebSocket fan-out. Build it before the ledger and pass
// it as the ledger's notifier, then hand it to NewServer.
func NewHub(ctx context.Context) *Hub {
	return newHub(ctx)
}

// StartTCP serves net/rpc connections until the listener fails. Run it on
// its own goroutine.
func (s *Server) StartTCP(port int) {
	rpc.RegisterName("ledger", s.handler)
	address := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		fmt.Println("Failed to start RPC server:", err)
		return
	}
	defer listener.Close()
	fmt.Println("RPC server started, listening on", address)

	// Listen for requests
	for {
		time.Sleep(1 * time.Millisecond)
		conn, err := listener.Accept()
		if err != nil {
			fmt.Println("⚠️ Failed to accept connection:", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// StartWeb serves JSON-RPC, WebSocket subscriptions and the chart page until
// ctx is canceled, then shuts down gracefully.
func (s *Server) StartWeb(ctx context.Context, wg *sync.WaitGroup, port int) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	wg.Add(1)
	go s.hub.run(wg)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.handleJSONRPC(w, r)
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		s.handleJSONRPC(w, r)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.hub, w, r, wg)
	})
	mux.HandleFunc("/chart", func(w http.ResponseWriter, r *http.Request) {
		s.handleChart(w, r)
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Info(log.WebMonitoring, "Web server started", "addr", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Crit(log.WebMonitoring, "ListenAndServe error", err)
		}
	}()

	// Wait for context to be canceled and shut down the server
	<-ctx.Done()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctxShutdown)
	s.hub.cancel()
}

// handleJSONRPC handles incoming JSON-RPC requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		w.WriteHeader(http.StatusNoContent)
		return
	} else if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse JSON-RPC request
	var req struct {
		JSONRPC string        `json:"jsonrpc"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
		ID      interface{}   `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	// Convert params to string array
	var stringParams []string
	for _, param := range req.Params {
		switch v := param.(type) {
		case string:
			stringParams = append(stringParams, v)
		case map[string]interface{}, []interface{}:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				http.Error(w, "Failed to marshal param", http.StatusBadRequest)
				return
			}
			stringParams = append(stringParams, string(jsonBytes))
		default:
			stringParams = append(stringParams, fmt.Sprintf("%v", v))
		}
	}

	result, err := s.dispatch(req.Method, stringParams)

	// Build JSON-RPC response
	var response map[string]interface{}
	if err != nil {
		response = map[string]interface{}{
			"jsonrpc": "1.0",
			"error": map[string]interface{}{
				"code":    -32603,
				"message": err.Error(),
			},
			"id": req.ID,
		}
	} else {
		// Try to parse result as JSON, if it fails use as string
		var resultValue interface{}
		if err := json.Unmarshal([]byte(result), &resultValue); err != nil {
			// Not JSON, use as string
			resultValue = result
		}
		response = map[string]interface{}{
			"jsonrpc": "1.0",
			"result":  resultValue,
			"id":      req.ID,
		}
	}

	// Send response
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}

// dispatch routes a method name to the handler. The "ledger." prefix used on
// the TCP port is accepted here too so clients can share call sites.
func (s *Server) dispatch(method string, params []string) (string, error) {
	var result string
	var err error

	_, end := telemetry.StartSpan(context.Background(), "rpc.dispatch",
		attribute.String("rpc.method", method))
	defer func() { end(err) }()

	switch strings.TrimPrefix(method, "ledger.") {
	case "Functions":
		err = s.handler.Functions(params, &result)
	case "GetVersion":
		err = s.handler.GetVersion(params, &result)
	case "GetLedgerInfo":
		err = s.handler.GetLedgerInfo(params, &result)
	case "GetStateRoots":
		err = s.handler.GetStateRoots(params, &result)
	case "GetMerkleRoot":
		err = s.handler.GetMerkleRoot(params, &result)
	case "GetNextIndex":
		err = s.handler.GetNextIndex(params, &result)
	case "CommitmentExists":
		err = s.handler.CommitmentExists(params, &result)
	case "IsNullifierSpent":
		err = s.handler.IsNullifierSpent(params, &result)
	case "GetWitness":
		err = s.handler.GetWitness(params, &result)
	case "GetNullifierProof":
		err = s.handler.GetNullifierProof(params, &result)
	case "GetCommitments":
		err = s.handler.GetCommitments(params, &result)
	case "GetCollateral":
		err = s.handler.GetCollateral(params, &result)
	case "GetEvents":
		err = s.handler.GetEvents(params, &result)
	case "SubmitMint":
		err = s.handler.SubmitMint(params, &result)
	case "SubmitTransfer":
		err = s.handler.SubmitTransfer(params, &result)
	case "SubmitRedeem":
		err = s.handler.SubmitRedeem(params, &result)
	case "GetSnapshot":
		err = s.handler.GetSnapshot(params, &result)
	case "VerifyState":
		err = s.handler.VerifyState(params, &result)
	default:
		err = fmt.Errorf("unknown method: %s", method)
	}

	return result, err
}
