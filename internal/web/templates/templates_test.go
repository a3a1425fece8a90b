package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorAlert(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, ErrorAlert(`column "<x>" not found`, "", "PARAM001").Render(t.Context(), &sb))

	out := sb.String()
	assert.Contains(t, out, `data-code="PARAM001"`)
	assert.Contains(t, out, "column &#34;&lt;x&gt;&#34; not found")
	assert.NotContains(t, out, "alert-action")
	assert.True(t, strings.HasSuffix(out, `<p class="alert-code">Code: PARAM001</p></div>`))
}

func TestErrorAlertWithAction(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, ErrorAlert("busy", "Retry shortly.", "RUN002").Render(t.Context(), &sb))
	assert.Contains(t, sb.String(), `<p class="alert-action">Retry shortly.</p>`)
}

func TestIndex(t *testing.T) {
	var sb strings.Builder
	err := Index([]Endpoint{{Method: "POST", Path: "/api/reduct", Summary: "Reducts & core"}}).Render(t.Context(), &sb)
	require.NoError(t, err)

	out := sb.String()
	assert.Contains(t, out, "<td><code>/api/reduct</code></td>")
	assert.Contains(t, out, "Reducts &amp; core")
	assert.True(t, strings.HasSuffix(out, "</tbody></table></body></html>"))
}
