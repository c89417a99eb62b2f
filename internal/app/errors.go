package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usercrud/internal/pkg"
)

// errorTemplates maps HTTP status codes to error page templates. Codes
// without an entry use errors/500.html.
var errorTemplates = map[int]string{
	http.StatusBadRequest:          "errors/400.html",
	http.StatusNotFound:            "errors/404.html",
	http.StatusInternalServerError: "errors/500.html",
}

// renderError answers with the JSON envelope for API clients and with an
// error page otherwise. An htmx request gets the page swapped into the body,
// since its target is usually the user panel.
func renderError(c *gin.Context, code int, message string) {
	if wantsJSON(c) || !acceptsHTML(c) {
		c.JSON(code, pkg.Response{Code: code, Message: message})
		return
	}
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Retarget", "body")
		c.Header("HX-Reswap", "innerHTML")
	}
	renderHTMLErrorPage(c, code)
}

// renderHTMLErrorPage renders the template for code, or a plain text line when
// no HTML renderer is usable.
func renderHTMLErrorPage(c *gin.Context, code int) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(code, "text/plain; charset=utf-8",
				[]byte(fmt.Sprintf("%d %s", code, defaultStatusText(code))))
		}
	}()

	tmpl, ok := errorTemplates[code]
	if !ok {
		tmpl = errorTemplates[http.StatusInternalServerError]
	}
	c.HTML(code, tmpl, gin.H{})
}

// wantsJSON reports an explicit JSON Accept header that does not also list
// text/html. It is checked first because acceptsHTML also matches */*.
func wantsJSON(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// acceptsHTML matches text/html, */* (browser default) and an empty Accept
// header.
func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html") ||
		strings.Contains(accept, "*/*") ||
		strings.TrimSpace(accept) == ""
}

func defaultStatusText(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict,
		http.StatusInternalServerError, http.StatusBadGateway:
		return http.StatusText(code)
	default:
		return "Error"
	}
}
