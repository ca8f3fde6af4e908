package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/offerjourney/internal/comparison"
	"github.com/kalambet/offerjourney/internal/dataset"
	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/source"
	"github.com/kalambet/offerjourney/internal/storage"
)

const testToken = "test-token-12345"

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// seedStore loads four converted rows for loan 42 and a single row for loan 7.
func seedStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var records []storage.InteractionRecord
	for i := 0; i < 4; i++ {
		records = append(records, storage.InteractionRecord{
			LoanID:      42,
			SessionDate: day(i),
			Offer:       sql.NullString{String: "Savings Boost", Valid: true},
			Service:     sql.NullString{String: "Email", Valid: true},
			Converted:   true,
			FICO:        sql.NullInt64{Int64: 690, Valid: true},
			Income:      sql.NullFloat64{Float64: 100000, Valid: true},
		})
	}
	records = append(records, storage.InteractionRecord{LoanID: 7, SessionDate: day(0)})

	if err := store.ReplaceInteractions(context.Background(), "seed", records, nil); err != nil {
		t.Fatalf("seeding interactions: %v", err)
	}
	return store
}

func testDeps(t *testing.T, token string) (Deps, *storage.Store) {
	t.Helper()
	store := seedStore(t)
	svc := comparison.NewService(dataset.NewCache(store, 0), nil)
	return Deps{
		Service:         svc,
		Imports:         store,
		Token:           token,
		DefaultCustomer: 3655615,
		DefaultKind:     source.KindParquet,
		SourceDefaults: map[string]source.Spec{
			source.KindParquet: {Kind: source.KindParquet, Path: "/data/demo.parquet"},
			source.KindMySQL:   {Kind: source.KindMySQL, Table: "events"},
		},
	}, store
}

func setupRouter(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	deps, store := testDeps(t, token)
	return NewRouter(deps), store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v; body = %s", err, rr.Body.String())
	}
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decode(t, rr, &resp)
	return resp.Error.Type
}

func TestHealth(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "offerjourney_api_requests_total") {
		t.Error("metrics output missing offerjourney_api_requests_total")
	}
}

func TestListCustomers(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp customerListResponse
	decode(t, rr, &resp)
	if len(resp.Customers) != 2 || resp.Customers[0] != 7 || resp.Customers[1] != 42 {
		t.Errorf("customers = %v, want [7 42]", resp.Customers)
	}
	// 3655615 is not in the table, so the smallest key is the default.
	if resp.Default != 7 {
		t.Errorf("default = %d, want 7", resp.Default)
	}
}

func TestGetCustomer(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/42", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp customerResponse
	decode(t, rr, &resp)
	if !resp.Known || resp.CreditScore != 690 {
		t.Errorf("customer = %+v", resp.Customer)
	}
	if resp.CheckingBalance != 4000 {
		t.Errorf("checking balance = %v, want 4000", resp.CheckingBalance)
	}
	if resp.LoanBalance != dataset.DefaultLoanBalance {
		t.Errorf("loan balance = %v, want default", resp.LoanBalance)
	}
	if resp.MaxStep != 3 {
		t.Errorf("max step = %d, want 3", resp.MaxStep)
	}
}

func TestGetCustomer_UnknownUsesDefaults(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/999", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp customerResponse
	decode(t, rr, &resp)
	if resp.Known {
		t.Error("expected unknown customer")
	}
	if resp.CreditScore != dataset.DefaultCreditScore {
		t.Errorf("credit score = %d, want default", resp.CreditScore)
	}
	if resp.Comparison.ImprovementPct != 300 {
		t.Errorf("improvement = %v, want 300", resp.Comparison.ImprovementPct)
	}
}

func TestGetCustomer_BadKey(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := errorType(t, rr); got != "invalid_request_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestJourneys_Both(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/42/journeys", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sess comparison.Session
	decode(t, rr, &sess)
	if sess.Rule.Strategy != journey.RuleBased || sess.Transformer.Strategy != journey.Transformer {
		t.Errorf("strategies = %v / %v", sess.Rule.Strategy, sess.Transformer.Strategy)
	}
	// Thinning keeps positions 0 and 3 of the rule-based journey.
	if sess.Comparison.RuleConversions != 2 || sess.Comparison.TransformerConversions != 4 {
		t.Errorf("comparison = %+v, want 2 vs 4", sess.Comparison)
	}
	if sess.Comparison.ImprovementPct != 100 {
		t.Errorf("improvement = %v, want 100", sess.Comparison.ImprovementPct)
	}
}

func TestJourneys_SingleStrategy(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/42/journeys?strategy=transformer", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var j journey.Journey
	decode(t, rr, &j)
	if j.Strategy != journey.Transformer || j.Synthetic || j.Len() != 4 {
		t.Errorf("journey = %+v", j)
	}
	if j.Steps[0].Offer != "Savings Boost" {
		t.Errorf("offer = %q", j.Steps[0].Offer)
	}
}

func TestJourneys_BadStrategy(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/42/journeys?strategy=bogus", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestStep(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/7/steps/4", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var frame journey.Frame
	decode(t, rr, &frame)
	if frame.Index != 4 || frame.MaxStep != 7 {
		t.Errorf("frame index/max = %d/%d, want 4/7", frame.Index, frame.MaxStep)
	}
	if frame.Rule.Step == nil || frame.Rule.Step.Offer != "Top-Up Loan Offer" {
		t.Errorf("rule step = %+v", frame.Rule.Step)
	}
	if frame.Rule.Exhausted || frame.Transformer.Exhausted {
		t.Error("no journey should be exhausted at step 4")
	}
}

func TestStep_Errors(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	tests := []struct {
		name string
		path string
	}{
		{"past the end", "/customers/42/steps/4"},
		{"negative", "/customers/42/steps/-1"},
		{"not a number", "/customers/42/steps/first"},
		{"bad key", "/customers/x/steps/0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestTimeline(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/customers/42/timeline", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var tl comparison.Timeline
	decode(t, rr, &tl)
	if len(tl.Series) != 2 {
		t.Fatalf("series = %d, want 2", len(tl.Series))
	}
	if !tl.Start.Equal(day(0)) || !tl.End.Equal(day(3)) {
		t.Errorf("range = %v..%v", tl.Start, tl.End)
	}
	if tl.Series[0].Points[1].Outcome != comparison.OutcomeNoConvert {
		t.Errorf("rule point 1 outcome = %q, want No Convert", tl.Series[0].Points[1].Outcome)
	}
}

func TestImports_RequireAuth(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	for _, req := range []*http.Request{
		authReq(http.MethodPost, "/imports", `{}`, ""),
		authReq(http.MethodGet, "/imports", "", "wrong-token"),
		authReq(http.MethodGet, "/imports/abc", "", ""),
	} {
		rr := serve(h, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", req.Method, req.URL.Path, rr.Code)
		}
	}
}

func TestImports_EmptyTokenRejectsAll(t *testing.T) {
	h, _ := setupRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/imports", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := serve(h, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := errorType(t, rr); got != "authentication_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestImports_DisabledWithoutStore(t *testing.T) {
	deps, _ := testDeps(t, testToken)
	deps.Imports = nil
	rr := serve(NewRouter(deps), authReq(http.MethodGet, "/imports", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCreateImport_UsesDefaults(t *testing.T) {
	h, store := setupRouter(t, testToken)
	rr := serve(h, authReq(http.MethodPost, "/imports", `{}`, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var imp storage.Import
	decode(t, rr, &imp)
	if imp.Status != storage.ImportPending || imp.Kind != source.KindParquet {
		t.Errorf("import = %+v", imp)
	}
	if imp.Location != "/data/demo.parquet" {
		t.Errorf("location = %q", imp.Location)
	}

	job, err := store.ClaimImportJob(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimImportJob = %v, %v", job, err)
	}
	if job.ImportID != imp.ID || job.Kind != source.KindParquet || job.ParquetPath != "" {
		t.Errorf("job = %+v", job)
	}

	got, err := store.GetImport(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if got.Status != storage.ImportPending {
		t.Errorf("stored status = %q", got.Status)
	}
}

func TestCreateImport_Invalid(t *testing.T) {
	h, store := setupRouter(t, testToken)
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"kind":`},
		{"mysql without configured dsn", `{"kind":"mysql","mysql_table":"events"}`},
		{"unknown kind", `{"kind":"csv","parquet_path":"x.csv"}`},
		{"bad table", `{"kind":"mysql","mysql_table":"events; drop"}`},
		{"undocumented path field", `{"kind":"parquet","path":"/tmp/mine.parquet"}`},
		{"column mapping", `{"kind":"parquet","columns":{"loan_id":"id"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPost, "/imports", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}

	if imports, _ := store.ListImports(context.Background(), 10); len(imports) != 0 {
		t.Errorf("rejected requests recorded %d imports", len(imports))
	}
	if job, _ := store.ClaimImportJob(context.Background()); job != nil {
		t.Errorf("rejected requests queued a job: %+v", job)
	}
}

func TestCreateImport_RejectsDSNInBody(t *testing.T) {
	deps, store := testDeps(t, testToken)
	deps.SourceDefaults[source.KindMySQL] = source.Spec{Kind: source.KindMySQL, DSN: "app:pw@tcp(db.internal:3306)/fsi", Table: "events"}
	h := NewRouter(deps)

	body := `{"kind":"mysql","dsn":"attacker:s3cret@tcp(evil.example:3306)/db","mysql_table":"events"}`
	rr := serve(h, authReq(http.MethodPost, "/imports", body, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "dsn") {
		t.Errorf("error does not name the rejected field: %s", rr.Body.String())
	}
	if job, _ := store.ClaimImportJob(context.Background()); job != nil {
		t.Fatalf("request with a dsn queued a job: %+v", job)
	}

	rr = serve(h, authReq(http.MethodPost, "/imports", `{"kind":"mysql","mysql_table":"events"}`, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var imp storage.Import
	decode(t, rr, &imp)
	if imp.Location != "db.internal:3306/fsi.events" {
		t.Errorf("location = %q, want the configured host", imp.Location)
	}
	if strings.Contains(rr.Body.String(), "pw") {
		t.Errorf("response leaks credentials: %s", rr.Body.String())
	}
}

func TestCreateImport_HonoursParquetPath(t *testing.T) {
	h, store := setupRouter(t, testToken)
	rr := serve(h, authReq(http.MethodPost, "/imports", `{"kind":"parquet","parquet_path":"/tmp/mine.parquet"}`, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var imp storage.Import
	decode(t, rr, &imp)
	if imp.Location != "/tmp/mine.parquet" {
		t.Errorf("location = %q, want /tmp/mine.parquet", imp.Location)
	}

	job, err := store.ClaimImportJob(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimImportJob = %v, %v", job, err)
	}
	if job.ParquetPath != "/tmp/mine.parquet" {
		t.Errorf("job path = %q", job.ParquetPath)
	}
}

func TestListAndGetImports(t *testing.T) {
	h, _ := setupRouter(t, testToken)
	rr := serve(h, authReq(http.MethodPost, "/imports", `{"kind":"parquet","parquet_path":"/tmp/other.parquet"}`, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created storage.Import
	decode(t, rr, &created)

	rr = serve(h, authReq(http.MethodGet, "/imports", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list []storage.Import
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	rr = serve(h, authReq(http.MethodGet, "/imports/"+created.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got storage.Import
	decode(t, rr, &got)
	if got.Location != "/tmp/other.parquet" {
		t.Errorf("location = %q", got.Location)
	}

	rr = serve(h, authReq(http.MethodGet, "/imports/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/imports?limit=zero", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}
