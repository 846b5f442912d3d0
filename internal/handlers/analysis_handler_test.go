package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"variance-analysis-backend/internal/repository"
	service "variance-analysis-backend/internal/services/analysis"
	"variance-analysis-backend/internal/services/variance"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const trialBalanceCSV = `Account Code,Account Description,Current Year Balance,Prior Year Balance
1000,Cash,120000,100000
2000,Receivables,150000,100000
3000,Inventory,105000,100000
4000,New lease liability,100000,0
`

func newTestRouter() *gin.Engine {
	return newTestRouterWithLimit(1 << 20)
}

func newTestRouterWithLimit(maxUploadSize int64) *gin.Engine {
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	svc := service.NewAnalysisService(store.Runs(), store.Records(), variance.DefaultThresholds(), zerolog.Nop())
	h := NewAnalysisHandler(svc, maxUploadSize)

	r := gin.New()
	r.POST("/variance/preview", h.Preview)
	r.POST("/analyses/upload", h.Upload)
	r.GET("/analyses/:runId", h.GetRun)
	r.GET("/analyses/:runId/records", h.ListRecords)
	r.GET("/analyses/:runId/stats", h.GetStats)
	r.PUT("/analyses/:runId/thresholds", h.UpdateThresholds)
	r.GET("/analyses/:runId/audit", h.GetAuditLog)
	r.GET("/analyses/:runId/export", h.Export)
	r.PUT("/records/:id/annotation", h.AnnotateRecord)
	return r
}

func do(t *testing.T, r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/analyses/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type uploadResponse struct {
	Run struct {
		ID                   string  `json:"id"`
		Status               string  `json:"status"`
		TotalRecords         int     `json:"total_records"`
		MaterialityThreshold float64 `json:"materiality_threshold"`
		SignificantThreshold float64 `json:"significant_threshold"`
	} `json:"run"`
	Summary struct {
		Significant struct {
			Count int64 `json:"count"`
		} `json:"significant"`
		Moderate struct {
			Count int64 `json:"count"`
		} `json:"moderate"`
	} `json:"summary"`
}

type recordsResponse struct {
	Items []struct {
		ID                 string  `json:"id"`
		AccountCode        string  `json:"account_code"`
		VariancePercentage float64 `json:"variance_percentage"`
		Flag               string  `json:"flag"`
	} `json:"items"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func upload(t *testing.T, r *gin.Engine) uploadResponse {
	t.Helper()
	w := do(t, r, uploadRequest(t, "tb-2025.csv", trialBalanceCSV, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var res uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return res
}

func listRecords(t *testing.T, r *gin.Engine, runID, query string) recordsResponse {
	t.Helper()
	w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+runID+"/records"+query, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("records status = %d, body = %s", w.Code, w.Body.String())
	}
	var res recordsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return res
}

func TestUpload(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)

	if res.Run.Status != "classified" || res.Run.TotalRecords != 4 {
		t.Errorf("run = %+v", res.Run)
	}
	if res.Summary.Significant.Count != 2 || res.Summary.Moderate.Count != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"filename":"tb-2025.csv"`) {
		t.Errorf("GetRun = %d %s", w.Code, w.Body.String())
	}
}

func TestUpload_WithThresholdFields(t *testing.T) {
	r := newTestRouter()
	w := do(t, r, uploadRequest(t, "tb.csv", trialBalanceCSV, map[string]string{"significant_threshold": "60"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res uploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Run.SignificantThreshold != 60 || res.Run.MaterialityThreshold != 10 {
		t.Errorf("thresholds = %v/%v, want 10/60", res.Run.MaterialityThreshold, res.Run.SignificantThreshold)
	}
	if res.Summary.Significant.Count != 1 || res.Summary.Moderate.Count != 2 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestUpload_BadRequests(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no file", httptest.NewRequest(http.MethodPost, "/analyses/upload", nil)},
		{"missing columns", uploadRequest(t, "tb.csv", "Code,Balance\n1,2\n", nil)},
		{"bad threshold", uploadRequest(t, "tb.csv", trialBalanceCSV, map[string]string{"materiality_threshold": "ten"})},
		{"negative threshold", uploadRequest(t, "tb.csv", trialBalanceCSV, map[string]string{"materiality_threshold": "-1"})},
		{"legacy xls", uploadRequest(t, "tb.xls", "binary", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, tt.req); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	r := newTestRouterWithLimit(512)
	content := trialBalanceCSV + strings.Repeat("9999,Filler,1,1\n", 100)

	t.Run("declared length", func(t *testing.T) {
		w := do(t, r, uploadRequest(t, "tb.csv", content, nil))
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown length", func(t *testing.T) {
		req := uploadRequest(t, "tb.csv", content, nil)
		req.ContentLength = -1
		w := do(t, r, req)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413, body = %s", w.Code, w.Body.String())
		}
	})
}

func TestUpload_SemicolonDecimalComma(t *testing.T) {
	r := newTestRouter()
	content := "Account Code;Account Description;Current Year Balance;Prior Year Balance\n" +
		"1000;Cash;1.200,00;1.000,00\n" +
		"2000;Bank;1234,56;1000\n"

	w := do(t, r, uploadRequest(t, "tb.csv", content, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	recs := listRecords(t, r, res.Run.ID, "")
	want := map[string]float64{"1000": 20, "2000": 23.456}
	if len(recs.Items) != len(want) {
		t.Fatalf("items = %+v", recs.Items)
	}
	for _, item := range recs.Items {
		if item.VariancePercentage != want[item.AccountCode] {
			t.Errorf("account %s pct = %v, want %v", item.AccountCode, item.VariancePercentage, want[item.AccountCode])
		}
	}
}

func TestUpdateThresholds(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)

	w := do(t, r, jsonRequest(t, http.MethodPut, "/analyses/"+res.Run.ID+"/thresholds",
		map[string]interface{}{"materiality_threshold": 30, "significant_threshold": 60, "performed_by": "manager"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"flags_changed":2`) {
		t.Errorf("body = %s, want flags_changed 2", w.Body.String())
	}

	recs := listRecords(t, r, res.Run.ID, "")
	want := map[string]string{"1000": "none", "2000": "moderate", "3000": "none", "4000": "significant"}
	for _, item := range recs.Items {
		if item.Flag != want[item.AccountCode] {
			t.Errorf("account %s flag = %s, want %s", item.AccountCode, item.Flag, want[item.AccountCode])
		}
	}
	if recs.Items[0].VariancePercentage != 20 {
		t.Errorf("variance percentage changed: %v", recs.Items[0].VariancePercentage)
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/audit", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"performed_by":"manager"`) {
		t.Errorf("audit = %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateThresholds_BadRequests(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)
	path := "/analyses/" + res.Run.ID + "/thresholds"

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"empty payload", jsonRequest(t, http.MethodPut, path, map[string]interface{}{}), http.StatusBadRequest},
		{"negative", jsonRequest(t, http.MethodPut, path, map[string]interface{}{"significant_threshold": -2}), http.StatusBadRequest},
		{"bad run id", jsonRequest(t, http.MethodPut, "/analyses/nope/thresholds", map[string]interface{}{"significant_threshold": 2}), http.StatusBadRequest},
		{"unknown run", jsonRequest(t, http.MethodPut, "/analyses/"+uuid.NewString()+"/thresholds", map[string]interface{}{"significant_threshold": 2}), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, tt.req); w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListRecords_FilterAndPaging(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)

	page := listRecords(t, r, res.Run.ID, "?limit=2")
	if len(page.Items) != 2 || !page.HasMore || page.NextCursor != "2" {
		t.Fatalf("page = %+v", page)
	}
	next := listRecords(t, r, res.Run.ID, "?limit=2&cursor="+page.NextCursor)
	if len(next.Items) != 2 || next.HasMore || next.Items[0].AccountCode != "3000" {
		t.Errorf("next page = %+v", next)
	}

	sig := listRecords(t, r, res.Run.ID, "?flag=significant")
	if len(sig.Items) != 2 {
		t.Errorf("significant = %+v", sig.Items)
	}

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/records?flag=urgent", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad flag status = %d, want 400", w.Code)
	}
}

func TestExport(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/export?format=csv", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "tb-2025-variance-") || !strings.HasSuffix(cd, `.csv"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[1] != "1000,Cash,120000,100000,20000,20,moderate," {
		t.Errorf("first data line = %q", lines[1])
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/export", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType || w.Body.Len() == 0 {
		t.Errorf("xlsx export = %d %q (%d bytes)", w.Code, w.Header().Get("Content-Type"), w.Body.Len())
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/export?format=pdf", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("pdf export status = %d, want 400", w.Code)
	}
}

func TestAnnotateRecord(t *testing.T) {
	r := newTestRouter()
	res := upload(t, r)
	recs := listRecords(t, r, res.Run.ID, "")

	w := do(t, r, jsonRequest(t, http.MethodPut, "/records/"+recs.Items[1].ID+"/annotation",
		map[string]string{"annotation": "  New customer contracts  "}))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"annotation":"New customer contracts"`) {
		t.Fatalf("annotate = %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+res.Run.ID+"/export?format=csv", nil))
	if !strings.Contains(w.Body.String(), ",significant,New customer contracts") {
		t.Errorf("annotation missing from export: %s", w.Body.String())
	}

	w = do(t, r, jsonRequest(t, http.MethodPut, "/records/"+uuid.NewString()+"/annotation", map[string]string{"annotation": "x"}))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown record status = %d, want 404", w.Code)
	}
}

func TestPreview(t *testing.T) {
	r := newTestRouter()

	body := `{
		"materiality_threshold": 10,
		"rows": [
			{"account_code": "1000", "account_description": "Cash", "current_year_balance": 120000, "prior_year_balance": 100000},
			{"account_code": "2000", "account_description": "Receivables", "current_year_balance": "150000", "prior_year_balance": "100000"},
			{"account_code": "3000", "account_description": "New", "current_year_balance": 100000, "prior_year_balance": 0}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/variance/preview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res struct {
		Records []struct {
			AccountCode        string  `json:"account_code"`
			Variance           string  `json:"variance"`
			VariancePercentage float64 `json:"variance_percentage"`
			Flag               string  `json:"flag"`
		} `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []struct {
		flag string
		pct  float64
	}{{"moderate", 20}, {"significant", 50}, {"significant", 100}}
	if len(res.Records) != len(want) {
		t.Fatalf("records = %+v", res.Records)
	}
	for i, wnt := range want {
		if res.Records[i].Flag != wnt.flag || res.Records[i].VariancePercentage != wnt.pct {
			t.Errorf("records[%d] = %+v, want %s/%v", i, res.Records[i], wnt.flag, wnt.pct)
		}
	}
	if res.Records[0].Variance != "20000" {
		t.Errorf("variance = %q, want \"20000\"", res.Records[0].Variance)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	r := newTestRouter()

	if w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/"+uuid.NewString(), nil)); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := do(t, r, httptest.NewRequest(http.MethodGet, "/analyses/not-a-uuid/stats", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
