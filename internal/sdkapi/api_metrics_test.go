package sdkapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gunes1hakan/feature-flags/internal/testsupport"
)

// The registry is global, so these tests measure deltas instead of absolutes.
func TestRequestMetrics(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Should record the route pattern for evaluate requests", func(t *testing.T) {
		labels := map[string]string{
			"method": "POST",
			"route":  "/sdk/v1/evaluate",
			"code":   "200",
		}

		testsupport.AssertMetricDelta(t, "ff_sdk_plane_http_requests_total", labels, 1, func() {
			rr := doRequest(t, api, http.MethodPost, "/sdk/v1/evaluate?env=prod", testSDKKey,
				`{"attributes":{"user_id":"u-1","country":"DE"}}`)
			require.Equal(t, http.StatusOK, rr.Code)
		})

		testsupport.AssertHistogramRecorded(t, "ff_sdk_plane_http_handling_seconds", map[string]string{
			"method": "POST",
			"route":  "/sdk/v1/evaluate",
		})
	})

	t.Run("Should collapse unknown paths to not_found", func(t *testing.T) {
		labels := map[string]string{
			"method": "GET",
			"route":  "not_found",
			"code":   "404",
		}

		testsupport.AssertMetricDelta(t, "ff_sdk_plane_http_requests_total", labels, 1, func() {
			rr := doRequest(t, api, http.MethodGet, "/wp-login.php", "", "")
			require.Equal(t, http.StatusNotFound, rr.Code)
		})
	})

	t.Run("Should count unauthorized requests under the route pattern", func(t *testing.T) {
		labels := map[string]string{
			"method": "GET",
			"route":  "/sdk/v1/flags",
			"code":   "401",
		}

		testsupport.AssertMetricDelta(t, "ff_sdk_plane_http_requests_total", labels, 1, func() {
			rr := doRequest(t, api, http.MethodGet, "/sdk/v1/flags?env=prod", "sdk-unknown", "")
			require.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	})
}

func TestEvalResultMetrics(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Should count rule matches under a coarse reason", func(t *testing.T) {
		labels := map[string]string{"reason": "rule_match"}

		// The snapshot's only rule targets country == TR, so the rule id is
		// collapsed out of the label before counting.
		testsupport.AssertMetricDelta(t, "ff_eval_results_total", labels, 1, func() {
			rr := doRequest(t, api, http.MethodPost, "/sdk/v1/evaluate?env=prod", testSDKKey,
				`{"attributes":{"user_id":"u-1","country":"TR"}}`)
			require.Equal(t, http.StatusOK, rr.Code)
		})
	})

	t.Run("Should count fallbacks when no rule matches", func(t *testing.T) {
		labels := map[string]string{"reason": "no_rule_match"}

		testsupport.AssertMetricDelta(t, "ff_eval_results_total", labels, 1, func() {
			rr := doRequest(t, api, http.MethodPost, "/sdk/v1/evaluate?env=prod", testSDKKey,
				`{"attributes":{"user_id":"u-1","country":"DE"}}`)
			require.Equal(t, http.StatusOK, rr.Code)
		})
	})
}
