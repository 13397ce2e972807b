package handlers

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Documentation routes. Both are public.
const (
	DocsPath    = "/api/docs"
	OpenAPIPath = DocsPath + "/openapi.yaml"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// swaggerPage is rendered once with the page title and the document URL.
const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>
    body { margin: 0; }
    .swagger-ui .topbar { display: none; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '%s',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      deepLinking: true,
      docExpansion: 'list',
      tryItOutEnabled: true,
      persistAuthorization: true,
    });
  </script>
</body>
</html>`

var docsHTML = []byte(fmt.Sprintf(swaggerPage, "PDF2XML API", OpenAPIPath))

// ServeOpenAPISpec writes the embedded OpenAPI document.
func (h *Handler) ServeOpenAPISpec(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/yaml", openAPIDocument)
}

// ServeSwaggerUI writes an interactive viewer for the OpenAPI document.
// Bearer tokens entered in the viewer persist across reloads.
func (h *Handler) ServeSwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", docsHTML)
}
