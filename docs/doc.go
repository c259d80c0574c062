// Package docs provides generated OpenAPI documentation.
//
// astrofix API
//
//	@title			astrofix API
//	@version		1.0
//	@description	Web page generation and layout correction API: generates pages from a text description, detects overlapping blocks in rendered screenshots, and iteratively corrects the markup.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/astrofix/astrofix
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/astrofix/serve.go -o ./swagger --parseDependency --parseInternal
