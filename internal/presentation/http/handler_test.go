package httppresentation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"

	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	appinvoice "github.com/Zhima-Mochi/minishop-orders/internal/application/invoice"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/sequence"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/client"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	infraoutbox "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/http"
)

type memSequence struct {
	mu sync.Mutex
	n  int64
}

func (s *memSequence) Next(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return sequence.Format(prefix, s.n), nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
}

type orderBody struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Status        string `json:"status"`
	TotalAmount   string `json:"totalAmount"`
	DeletedByUser bool   `json:"deletedByUser"`
}

type handlerSuite struct {
	suite.Suite
	srv     *httptest.Server
	relay   *infraoutbox.Relay
	stock   *memory.InventoryRepository
	reg     *prometheus.Registry
	gateway *dompay.Gateway
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(handlerSuite))
}

// SetupTest wires the whole service in memory; the effect clients call back
// into the same server, as a single-binary deployment does.
func (suite *handlerSuite) SetupTest() {
	suite.reg = prometheus.NewRegistry()
	counters, histograms := prometrics.Standard(prometrics.New("", "", suite.reg))
	tel := infraobs.New(observability.NopTracer(), observability.NopLogger(),
		infraobs.Instruments{Counters: counters, Histograms: histograms})

	orders := memory.NewOrderRepository()
	suite.stock = memory.NewInventoryRepository()
	ids := id.NewUUIDGenerator()
	orch := apporder.NewOrchestrator(apporder.Deps{Repo: orders, Sequence: &memSequence{}, IDs: ids, Tel: tel})

	suite.gateway = dompay.NewGateway(dompay.GatewayConfig{
		TmnCode: "TMN01", Secret: "secret", PayURL: "https://pay.example/vpcpay.html",
		Version: "2.1.0", Command: "pay", CurrCode: "VND", Locale: "vn", OrderType: "other",
		HexCase: dompay.HexUpper,
	})

	h := httppresentation.NewHandler(httppresentation.Services{
		Orders:    orch,
		Inventory: appinventory.NewService(suite.stock, tel),
		Invoices:  appinvoice.NewService(memory.NewInvoiceRepository(), ids, tel),
		Payments:  apppayment.NewService(suite.gateway, orch.Get, orch.Complete, tel),
	}, promhttp.HandlerFor(suite.reg, promhttp.HandlerOpts{}), tel)
	suite.srv = httptest.NewServer(h.Router())
	suite.T().Cleanup(suite.srv.Close)

	bus := infraoutbox.NewBus(nil)
	apporder.NewEffectWorker(bus,
		client.NewInventory(client.Config{BaseURL: suite.srv.URL}, tel),
		client.NewInvoice(client.Config{BaseURL: suite.srv.URL}, tel),
		tel,
	).Start()
	suite.relay = infraoutbox.NewRelay(orders, bus, apporder.DecodeEffect, infraoutbox.RelayConfig{}, tel)
}

func (suite *handlerSuite) do(method, path string, body any, header ...string) (int, envelope) {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		suite.Require().NoError(err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(suite.T().Context(), method, suite.srv.URL+path, rd)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := suite.srv.Client().Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func (suite *handlerSuite) drain() {
	for {
		n, err := suite.relay.ProcessBatch(suite.T().Context())
		suite.Require().NoError(err)
		if n == 0 {
			return
		}
	}
}

func (suite *handlerSuite) createOrder(status string, qty int) orderBody {
	code, env := suite.do(http.MethodPost, "/api/orders", map[string]any{
		"status":       status,
		"customerName": gofakeit.Name(),
		"items": []map[string]any{
			{"productId": "P1", "productName": "Serum", "quantity": qty, "unitPrice": "10"},
		},
	})
	suite.Require().Equal(http.StatusCreated, code, env.Message)
	suite.True(env.Success)
	var o orderBody
	suite.Require().NoError(json.Unmarshal(env.Data, &o))
	return o
}

func (suite *handlerSuite) stockOf(productID string) int {
	item, err := suite.stock.Get(suite.T().Context(), productID)
	suite.Require().NoError(err)
	return item.Quantity
}

func (suite *handlerSuite) TestOrderLifecycleMovesStockAndInvoices() {
	suite.Require().NoError(suite.stock.Set(suite.T().Context(), "P1", 10))

	o := suite.createOrder("DRAFT", 2)
	suite.Equal("DH1", o.Code)
	suite.Equal("20", o.TotalAmount)

	code, env := suite.do(http.MethodPut, "/api/orders/"+o.ID, map[string]any{"status": "COMPLETED"})
	suite.Require().Equal(http.StatusOK, code, env.Message)
	suite.drain()
	suite.Equal(8, suite.stockOf("P1"))

	code, env = suite.do(http.MethodPut, "/api/orders/"+o.ID, map[string]any{"status": "RETURNED", "returnReason": "damaged"})
	suite.Require().Equal(http.StatusOK, code, env.Message)
	suite.drain()
	suite.Equal(10, suite.stockOf("P1"))

	code, env = suite.do(http.MethodGet, "/invoices?orderId="+o.ID, nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.Require().NotNil(env.Count)
	suite.Equal(2, *env.Count)
	suite.Contains(string(env.Data), `"invoiceType":"RETURNED"`)
}

func (suite *handlerSuite) TestCreateValidation() {
	code, env := suite.do(http.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{{"productId": "", "quantity": 0, "unitPrice": "1"}},
	})
	suite.Equal(http.StatusBadRequest, code)
	suite.False(env.Success)
	suite.Contains(env.Message, "items[0].productId is required")
	suite.Contains(env.Message, "items[0].quantity must be at least 1")

	code, _ = suite.do(http.MethodPost, "/api/orders", `{"items": [], "bogus": true}`)
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *handlerSuite) TestErrorMapping() {
	code, env := suite.do(http.MethodGet, "/api/orders/missing", nil)
	suite.Equal(http.StatusNotFound, code)
	suite.Equal(http.StatusNotFound, env.Status)
	suite.False(env.Success)

	o := suite.createOrder("COMPLETED", 1)
	code, _ = suite.do(http.MethodPut, "/api/orders/"+o.ID, map[string]any{"status": "DRAFT"})
	suite.Equal(http.StatusConflict, code)

	code, _ = suite.do(http.MethodDelete, "/api/orders/"+o.ID+"?hard=true", nil)
	suite.Equal(http.StatusConflict, code)

	code, _ = suite.do(http.MethodDelete, "/api/orders/"+o.ID+"?hard=maybe", nil)
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *handlerSuite) TestDeleteAndList() {
	draft := suite.createOrder("DRAFT", 1)
	done := suite.createOrder("COMPLETED", 1)

	code, env := suite.do(http.MethodDelete, "/api/orders/"+draft.ID, nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`{"id":"`+draft.ID+`","hard":true}`, string(env.Data))

	code, env = suite.do(http.MethodDelete, "/api/orders/"+done.ID, nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`{"id":"`+done.ID+`","hard":false}`, string(env.Data))

	_, env = suite.do(http.MethodGet, "/api/orders", nil)
	suite.Require().NotNil(env.Count)
	suite.Equal(0, *env.Count)

	_, env = suite.do(http.MethodGet, "/api/orders?includeDeleted=true&status=completed", nil)
	suite.Require().NotNil(env.Count)
	suite.Equal(1, *env.Count)
	var list []orderBody
	suite.Require().NoError(json.Unmarshal(env.Data, &list))
	suite.True(list[0].DeletedByUser)
}

func (suite *handlerSuite) TestInventoryEndpoints() {
	code, _ := suite.do(http.MethodPut, "/inventory/P7", map[string]any{"quantity": 3})
	suite.Require().Equal(http.StatusOK, code)

	batch := []map[string]any{{"productId": "P7", "quantity": 2, "operation": -1}}
	code, env := suite.do(http.MethodPost, "/inventory/update", batch, "Idempotency-Key", "k-1")
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`{"applied":true}`, string(env.Data))

	code, env = suite.do(http.MethodPost, "/inventory/update", batch, "Idempotency-Key", "k-1")
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`{"applied":false}`, string(env.Data))

	code, env = suite.do(http.MethodPost, "/inventory/update", []map[string]any{{"productId": "P7", "quantity": 5, "operation": -1}})
	suite.Equal(http.StatusBadRequest, code)
	suite.False(env.Success)

	code, _ = suite.do(http.MethodPost, "/inventory/update", []map[string]any{{"productId": "P7", "quantity": 1, "operation": 0}})
	suite.Equal(http.StatusBadRequest, code)

	code, env = suite.do(http.MethodGet, "/inventory/P7", nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.Contains(string(env.Data), `"quantity":1`)
}

func (suite *handlerSuite) TestInvoiceCreateDuplicate() {
	body := map[string]any{
		"orderId": "o-1", "code": "DH5", "invoiceType": "COMPLETED", "customerName": "An",
		"totalAmount": "20", "paymentMethod": "CASH",
		"items": []map[string]any{{"productId": "P1", "productName": "Serum", "quantity": 2, "unitPrice": "10"}},
	}
	code, env := suite.do(http.MethodPost, "/invoices/create", body)
	suite.Require().Equal(http.StatusCreated, code)
	suite.True(env.Success)

	code, env = suite.do(http.MethodPost, "/invoices/create", body)
	suite.Equal(http.StatusOK, code)
	suite.Equal("duplicate", env.Message)

	body["invoiceType"] = "DRAFT"
	code, _ = suite.do(http.MethodPost, "/invoices/create", body)
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *handlerSuite) TestSalesReports() {
	suite.Require().NoError(suite.stock.Set(suite.T().Context(), "P1", 10))
	suite.createOrder("COMPLETED", 2)
	returned := suite.createOrder("COMPLETED", 1)
	suite.drain()
	code, env := suite.do(http.MethodPut, "/api/orders/"+returned.ID, map[string]any{"status": "RETURNED", "returnReason": "wrong shade"})
	suite.Require().Equal(http.StatusOK, code, env.Message)
	suite.drain()

	code, env = suite.do(http.MethodGet, "/reports", nil)
	suite.Require().Equal(http.StatusOK, code, env.Message)
	var rep struct {
		TotalRevenue         string `json:"totalRevenue"`
		TotalRevenueDisplay  string `json:"totalRevenueDisplay"`
		TotalOrders          int64  `json:"totalOrders"`
		TotalQuantityProduct int64  `json:"totalQuantityProduct"`
		TotalOrdersReturned  int64  `json:"totalOrdersReturned"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &rep))
	suite.Equal("30", rep.TotalRevenue)
	suite.Equal("0.00 triệu", rep.TotalRevenueDisplay)
	suite.Equal(int64(2), rep.TotalOrders)
	suite.Equal(int64(3), rep.TotalQuantityProduct)
	suite.Equal(int64(1), rep.TotalOrdersReturned)

	code, env = suite.do(http.MethodGet, "/reports?fromDate=2001-01-01&toDate=2001-01-31", nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.Contains(string(env.Data), `"totalOrders":0`)

	code, env = suite.do(http.MethodGet, "/reports/daily", nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`"30"`, string(env.Data))

	code, env = suite.do(http.MethodGet, "/reports/monthly?fromDate=2001-01-01&toDate=2001-01-31", nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.JSONEq(`"0"`, string(env.Data))

	code, _ = suite.do(http.MethodGet, "/reports/daily?fromDate=yesterday", nil)
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *handlerSuite) TestGetInvoice() {
	code, env := suite.do(http.MethodPost, "/invoices/create", map[string]any{
		"orderId": "o-9", "code": "DH9", "invoiceType": "COMPLETED", "totalAmount": "5",
		"items": []map[string]any{{"productId": "P1", "quantity": 1, "unitPrice": "5"}},
	})
	suite.Require().Equal(http.StatusCreated, code, env.Message)
	var created struct {
		ID string `json:"id"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &created))

	code, env = suite.do(http.MethodGet, "/invoices/"+created.ID, nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.Contains(string(env.Data), `"code":"DH9"`)

	code, _ = suite.do(http.MethodGet, "/invoices/"+gofakeit.UUID(), nil)
	suite.Equal(http.StatusNotFound, code)
}

func (suite *handlerSuite) TestPaymentFlow() {
	o := suite.createOrder("DRAFT", 3)

	code, env := suite.do(http.MethodPost, "/api/payments/vnpay", map[string]any{"orderId": o.ID}, "X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	suite.Require().Equal(http.StatusOK, code, env.Message)
	var created struct {
		PayURL string `json:"payUrl"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &created))
	suite.Contains(created.PayURL, "vnp_IpAddr=203.0.113.9")
	suite.Contains(created.PayURL, "vnp_Amount=3000")

	params := map[string]string{
		dompay.FieldTxnRef:       o.Code,
		dompay.FieldResponseCode: "00",
		dompay.FieldAmount:       "3000",
	}
	query := suite.gateway.Codec().Query(params)

	code, env = suite.do(http.MethodGet, "/api/payments/vnpay/return?"+query, nil)
	suite.Require().Equal(http.StatusOK, code, env.Message)
	suite.True(env.Success)
	suite.Contains(string(env.Data), `"orderStatus":"COMPLETED"`)

	forged := strings.Replace(query, "vnp_Amount=3000", "vnp_Amount=1", 1)
	code, env = suite.do(http.MethodGet, "/api/payments/vnpay/return?"+forged, nil)
	suite.Equal(http.StatusBadRequest, code)
	suite.False(env.Success)
}

func (suite *handlerSuite) TestHealthAndMetrics() {
	code, env := suite.do(http.MethodGet, "/health", nil)
	suite.Equal(http.StatusOK, code)
	suite.True(env.Success)

	resp, err := suite.srv.Client().Get(suite.srv.URL + "/metrics")
	suite.Require().NoError(err)
	defer resp.Body.Close()
	suite.Equal(http.StatusOK, resp.StatusCode)

	mfs, err := suite.reg.Gather()
	suite.Require().NoError(err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "GET /health" {
					found = true
				}
			}
		}
	}
	suite.True(found, "health request counted under its route pattern")
}
