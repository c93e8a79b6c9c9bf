//go:build chaos

// Package chaos contains chaos engineering tests for input boundary validation.
// These tests verify the system's behavior under extreme input scenarios including
// large payloads, special characters, SQL injection attempts, and malformed requests.
//
// IMPORTANT: These tests run against the real docker-compose infrastructure.
// Usage:
//   docker-compose up -d
//   go test -v -race -tags chaos ./tests/chaos/...
package chaos

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateLongString creates a string of the specified length filled with 'a'.
func generateLongString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func saleWindow() (string, string) {
	now := time.Now()
	return now.Add(-time.Hour).UTC().Format(time.RFC3339), now.Add(time.Hour).UTC().Format(time.RFC3339)
}

// SQL injection payloads to test parameterized query protection.
var sqlInjectionPayloads = []string{
	"'; DROP TABLE sales;--",
	"' OR '1'='1",
	"' UNION SELECT * FROM information_schema.tables--",
	"sale_id/**/OR/**/1=1",
	"1; SELECT * FROM sales WHERE 1=1--",
	"'; DELETE FROM orders;--",
	"' OR 1=1--",
	"1' OR '1' = '1",
	"admin'--",
	"' OR 'x'='x",
}

// Special character payloads to test character handling.
var specialCharPayloads = []struct {
	name    string
	payload string
}{
	{"null_byte", "sale\x00id"},
	{"newline", "sale\nid"},
	{"tab", "sale\tid"},
	{"carriage_return", "sale\rid"},
	{"single_quote", "sale'id"},
	{"double_quote", "sale\"id"},
	{"backslash", "sale\\id"},
	{"emoji", "emoji🎉sale"},
	{"chinese", "中文促销"},
	{"arabic", "تخفيض"},
	{"mixed_unicode", "sale_日本語_emoji_🎯"},
	{"control_chars", "sale\x01\x02\x03id"},
	{"semicolon", "sale;id"},
	{"pipe", "sale|id"},
	{"ampersand", "sale&id"},
	{"less_than", "sale<id"},
	{"greater_than", "sale>id"},
	{"percent", "sale%id"},
}

// ============================================================================
// Sale/User Identifier Length Boundary Tests
// ============================================================================

func TestCreateSale_LongSaleIDBoundary(t *testing.T) {
	cleanupTables(t)

	start, end := saleWindow()

	testCases := []struct {
		name           string
		saleIDLen      int
		expectedStatus int
		expectRejected bool
		description    string
	}{
		{
			name:           "255_chars_at_db_limit",
			saleIDLen:      255,
			expectedStatus: http.StatusCreated,
			expectRejected: false,
			description:    "Exactly at VARCHAR(255) limit - should succeed",
		},
		{
			name:           "256_chars_exceeds_limit",
			saleIDLen:      256,
			expectedStatus: http.StatusBadRequest,
			expectRejected: true,
			description:    "1 char over max=255 validation - API should reject",
		},
		{
			name:           "1000_chars_far_exceeds_limit",
			saleIDLen:      1000,
			expectedStatus: http.StatusBadRequest,
			expectRejected: true,
			description:    "1000+ chars - API should reject",
		},
		{
			name:           "10000_chars_extreme",
			saleIDLen:      10000,
			expectedStatus: http.StatusBadRequest,
			expectRejected: true,
			description:    "Extreme length - API should reject",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cleanupTables(t)
			saleID := generateLongString(tc.saleIDLen)

			resp, err := postJSON(formatURL("/api/sales"), map[string]interface{}{
				"sale_id":     saleID,
				"name":        "test_sale",
				"start_time":  start,
				"end_time":    end,
				"total_stock": 100,
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode,
				"Expected status %d for %s, got %d",
				tc.expectedStatus, tc.description, resp.StatusCode)

			if tc.expectRejected {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				var count int
				err := testPool.QueryRow(ctx,
					"SELECT COUNT(*) FROM sales WHERE id = $1", saleID).Scan(&count)
				require.NoError(t, err)
				assert.Equal(t, 0, count, "No sale should exist for rejected sale_id")
			}
		})
	}
}

func TestGetSale_LongSaleIDBoundary(t *testing.T) {
	cleanupTables(t)

	testCases := []struct {
		name               string
		saleIDLen          int
		acceptableStatuses []int
	}{
		{"1000_chars", 1000, []int{http.StatusNotFound}},
		{"5000_chars", 5000, []int{http.StatusNotFound, http.StatusRequestHeaderFieldsTooLarge}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			saleID := generateLongString(tc.saleIDLen)

			encodedID := url.PathEscape(saleID)
			req, _ := http.NewRequest("GET", formatURL("/api/sales/"+encodedID), nil)

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			isAcceptable := false
			for _, s := range tc.acceptableStatuses {
				if resp.StatusCode == s {
					isAcceptable = true
					break
				}
			}
			assert.True(t, isAcceptable,
				"Long sale_id GET should return one of %v, got %d", tc.acceptableStatuses, resp.StatusCode)
		})
	}
}

func TestPurchase_LongIdentifierBoundary(t *testing.T) {
	cleanupTables(t)

	testCases := []struct {
		name      string
		saleIDLen int
		userIDLen int
	}{
		{"long_sale_id", 1000, 10},
		{"long_user_id", 10, 1000},
		{"both_long", 1000, 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := postJSON(formatURL("/api/purchases"), map[string]string{
				"sale_id": generateLongString(tc.saleIDLen),
				"user_id": generateLongString(tc.userIDLen),
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			// A user_id or sale_id longer than 255 characters fails the
			// max=255 validator on the purchase request (400). Either way:
			// no panic or crash.
			assert.True(t,
				resp.StatusCode == http.StatusNotFound ||
					resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"Should handle long identifiers gracefully, got %d", resp.StatusCode)
		})
	}
}

// ============================================================================
// SQL Injection Prevention Tests
// ============================================================================

func TestCreateSale_SQLInjection(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()

	for _, payload := range sqlInjectionPayloads {
		t.Run(payload, func(t *testing.T) {
			cleanupTables(t)

			resp, err := postJSON(formatURL("/api/sales"), map[string]interface{}{
				"sale_id":     payload,
				"name":        payload,
				"start_time":  start,
				"end_time":    end,
				"total_stock": 100,
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.True(t,
				resp.StatusCode == http.StatusCreated ||
					resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"SQL injection payload should be handled safely, got status %d", resp.StatusCode)

			verifyTablesExist(t)
		})
	}
}

func TestGetSale_SQLInjection(t *testing.T) {
	cleanupTables(t)
	createValidSale(t, "valid_sale", 100)

	for _, payload := range sqlInjectionPayloads {
		t.Run(payload, func(t *testing.T) {
			encodedPayload := url.PathEscape(payload)
			req, _ := http.NewRequest("GET", formatURL("/api/sales/"+encodedPayload), nil)

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusNotFound, resp.StatusCode,
				"SQL injection in GET should return 404")

			verifyTablesExist(t)
		})
	}
}

func TestPurchase_SQLInjection(t *testing.T) {
	cleanupTables(t)
	createValidSale(t, "valid_sale", 100)

	testCases := []struct {
		name   string
		saleID string
		userID string
	}{
		{"injection_in_sale_id", sqlInjectionPayloads[0], "user1"},
		{"injection_in_user_id", "valid_sale", sqlInjectionPayloads[0]},
		{"injection_in_both", sqlInjectionPayloads[1], sqlInjectionPayloads[2]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := postJSON(formatURL("/api/purchases"), map[string]string{
				"sale_id": tc.saleID,
				"user_id": tc.userID,
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			// A user_id containing injection characters is rejected by the
			// alphanumdash validator (400) before it ever reaches a query;
			// a rogue sale_id with a clean user_id resolves to 404.
			assert.True(t,
				resp.StatusCode == http.StatusNotFound ||
					resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusOK ||
					resp.StatusCode == http.StatusInternalServerError,
				"SQL injection should be handled safely")

			verifyTablesExist(t)
		})
	}
}

// ============================================================================
// Special Character Handling Tests
// ============================================================================

func TestCreateSale_SpecialCharacters(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()

	for _, tc := range specialCharPayloads {
		t.Run(tc.name, func(t *testing.T) {
			cleanupTables(t)

			resp, err := postJSON(formatURL("/api/sales"), map[string]interface{}{
				"sale_id":     tc.payload,
				"name":        tc.payload,
				"start_time":  start,
				"end_time":    end,
				"total_stock": 100,
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.True(t,
				resp.StatusCode == http.StatusCreated ||
					resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"Special chars should be handled safely, got %d for %s",
				resp.StatusCode, tc.name)

			if resp.StatusCode == http.StatusCreated {
				encodedPayload := url.PathEscape(tc.payload)
				getReq, _ := http.NewRequest("GET", formatURL("/api/sales/"+encodedPayload), nil)
				getResp, err := httpClient.Do(getReq)
				require.NoError(t, err)
				defer getResp.Body.Close()

				assert.True(t,
					getResp.StatusCode == http.StatusOK ||
						getResp.StatusCode == http.StatusNotFound,
					"Should handle special char retrieval")
			}
		})
	}
}

func TestPurchase_SpecialCharacters(t *testing.T) {
	cleanupTables(t)

	for _, tc := range specialCharPayloads {
		t.Run(tc.name+"_in_user_id", func(t *testing.T) {
			cleanupTables(t)
			createValidSale(t, "test_sale", 100)

			resp, err := postJSON(formatURL("/api/purchases"), map[string]string{
				"sale_id": "test_sale",
				"user_id": tc.payload,
			})
			require.NoError(t, err)
			defer resp.Body.Close()

			// Most of these payloads fall outside the alphanumdash charset and
			// should be rejected with 400, not crash the server.
			assert.True(t,
				resp.StatusCode == http.StatusOK ||
					resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"Special chars in user_id should be handled safely")
		})
	}
}

// ============================================================================
// Stock Field Boundary Tests
// ============================================================================

func TestCreateSale_TotalStockBoundary(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()

	testCases := []struct {
		name           string
		totalStock     interface{}
		expectedStatus int
		description    string
	}{
		{"stock_zero", 0, http.StatusCreated, "Zero is allowed (gte=0)"},
		{"stock_negative", -1, http.StatusBadRequest, "Negative should be rejected"},
		{"stock_negative_large", -100, http.StatusBadRequest, "Large negative should be rejected"},
		{"stock_one", 1, http.StatusCreated, "Minimum positive should succeed"},
		{"stock_positive", 100, http.StatusCreated, "Normal positive should succeed"},
		{"stock_max_int32", math.MaxInt32, http.StatusCreated, "MaxInt32 should succeed"},
		{"stock_float", 1.5, http.StatusBadRequest, "Float should be rejected or truncated"},
		{"stock_string", "100", http.StatusBadRequest, "String type should be rejected"},
		{"stock_null", nil, http.StatusBadRequest, "Null should be rejected (required)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cleanupTables(t)

			payload := map[string]interface{}{
				"sale_id":    "test_sale_" + tc.name,
				"name":       "test_sale_" + tc.name,
				"start_time": start,
				"end_time":   end,
			}

			if tc.totalStock != nil {
				payload["total_stock"] = tc.totalStock
			}

			body, _ := json.Marshal(payload)

			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(string(body)))
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tc.name == "stock_float" {
				assert.True(t,
					resp.StatusCode == http.StatusCreated ||
						resp.StatusCode == http.StatusBadRequest,
					"Float handling should be consistent")
			} else {
				assert.Equal(t, tc.expectedStatus, resp.StatusCode,
					"Expected status %d for %s, got %d",
					tc.expectedStatus, tc.description, resp.StatusCode)
			}
		})
	}
}

func TestCreateSale_TotalStockOverflow(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()

	overflowPayloads := []struct {
		name    string
		rawJSON string
	}{
		{
			"max_int64_overflow",
			`{"sale_id": "overflow_test", "name": "overflow_test", "start_time": "` + start + `", "end_time": "` + end + `", "total_stock": 9223372036854775808}`,
		},
		{
			"extremely_large",
			`{"sale_id": "overflow_test2", "name": "overflow_test2", "start_time": "` + start + `", "end_time": "` + end + `", "total_stock": 99999999999999999999999999999}`,
		},
	}

	for _, tc := range overflowPayloads {
		t.Run(tc.name, func(t *testing.T) {
			cleanupTables(t)

			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(tc.rawJSON))
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.True(t,
				resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"Overflow should be rejected, got %d", resp.StatusCode)
		})
	}
}

// ============================================================================
// Malformed JSON and Request Size Tests
// ============================================================================

func TestCreateSale_MalformedJSON(t *testing.T) {
	cleanupTables(t)

	malformedPayloads := []struct {
		name string
		body string
	}{
		{"completely_invalid", `{invalid}`},
		{"truncated_json", `{"sale_id": "test"`},
		{"missing_closing_brace", `{"sale_id": "test", "total_stock": 100`},
		{"extra_comma", `{"sale_id": "test", "total_stock": 100,}`},
		{"single_quotes", `{'sale_id': 'test', 'total_stock': 100}`},
		{"unquoted_keys", `{sale_id: "test", total_stock: 100}`},
		{"trailing_data", `{"sale_id": "test", "total_stock": 100}garbage`},
		{"empty_body", ``},
		{"just_brackets", `{}`},
		{"null_json", `null`},
		{"array_instead_of_object", `[1, 2, 3]`},
		{"number_instead_of_object", `42`},
		{"string_instead_of_object", `"hello"`},
	}

	for _, tc := range malformedPayloads {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode,
				"Malformed JSON should return 400, got %d for %s", resp.StatusCode, tc.name)
		})
	}
}

func TestCreateSale_WrongContentType(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()
	body := `{"sale_id": "test", "name": "test", "start_time": "` + start + `", "end_time": "` + end + `", "total_stock": 100}`

	contentTypes := []struct {
		name        string
		contentType string
	}{
		{"form_urlencoded", "application/x-www-form-urlencoded"},
		{"multipart_form", "multipart/form-data"},
		{"text_plain", "text/plain"},
		{"text_html", "text/html"},
		{"no_content_type", ""},
	}

	for _, tc := range contentTypes {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.True(t,
				resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusCreated,
				"Wrong content type should be handled gracefully")
		})
	}
}

func TestCreateSale_LargePayload(t *testing.T) {
	cleanupTables(t)
	start, end := saleWindow()

	payloadSizes := []struct {
		name          string
		sizeKB        int
		expectedLimit bool
	}{
		{"100KB", 100, false},
		{"500KB", 500, false},
		{"5MB", 5 * 1024, true},
	}

	for _, tc := range payloadSizes {
		t.Run(tc.name, func(t *testing.T) {
			cleanupTables(t)

			var largeData strings.Builder
			largeData.WriteString(`{"sale_id": "test_sale_large", "name": "test_sale_large", "start_time": "` + start + `", "end_time": "` + end + `", "total_stock": 100, "extra": "`)

			targetSize := tc.sizeKB * 1024
			for largeData.Len() < targetSize {
				largeData.WriteString("A")
			}
			largeData.WriteString(`"}`)

			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(largeData.String()))
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)

			if tc.expectedLimit {
				if err != nil {
					assert.Contains(t, err.Error(), "body size exceeds",
						"Expected body size limit error")
				} else {
					defer resp.Body.Close()
					assert.True(t,
						resp.StatusCode == http.StatusRequestEntityTooLarge ||
							resp.StatusCode == http.StatusBadRequest,
						"Large payload should be rejected, got %d", resp.StatusCode)
				}
			} else {
				require.NoError(t, err)
				defer resp.Body.Close()
				assert.True(t,
					resp.StatusCode == http.StatusCreated ||
						resp.StatusCode == http.StatusBadRequest ||
						resp.StatusCode == http.StatusConflict ||
						resp.StatusCode == http.StatusInternalServerError,
					"Normal payload should be processed, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateSale_DeeplyNestedJSON(t *testing.T) {
	cleanupTables(t)

	testCases := []struct {
		name  string
		depth int
	}{
		{"depth_10", 10},
		{"depth_50", 50},
		{"depth_100", 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var nested strings.Builder
			for i := 0; i < tc.depth; i++ {
				nested.WriteString(`{"nested":`)
			}
			nested.WriteString(`{"sale_id": "test", "total_stock": 100}`)
			for i := 0; i < tc.depth; i++ {
				nested.WriteString(`}`)
			}

			req, _ := http.NewRequest("POST", formatURL("/api/sales"), strings.NewReader(nested.String()))
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.True(t,
				resp.StatusCode == http.StatusBadRequest ||
					resp.StatusCode == http.StatusInternalServerError,
				"Deeply nested JSON should be handled gracefully, got %d", resp.StatusCode)
		})
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

// verifyTablesExist checks that the sales and orders tables still exist.
func verifyTablesExist(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var salesExists bool
	err := testPool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'sales'
		)
	`).Scan(&salesExists)
	require.NoError(t, err)
	assert.True(t, salesExists, "sales table should still exist")

	var ordersExists bool
	err = testPool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'orders'
		)
	`).Scan(&ordersExists)
	require.NoError(t, err)
	assert.True(t, ordersExists, "orders table should still exist")
}

// createValidSale creates a valid active sale for testing via HTTP API.
func createValidSale(t *testing.T, saleID string, stock int) {
	t.Helper()
	start, end := saleWindow()

	resp, err := postJSON(formatURL("/api/sales"), map[string]interface{}{
		"sale_id":     saleID,
		"name":        saleID,
		"start_time":  start,
		"end_time":    end,
		"total_stock": stock,
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	_, _ = io.ReadAll(resp.Body)

	require.Equal(t, http.StatusCreated, resp.StatusCode,
		"Failed to create test sale %s", saleID)
}
