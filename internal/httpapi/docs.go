// Package httpapi's general API annotations for swaggo/swag.
//
//	@title			Plugin Host Kernel API
//	@version		1.0
//	@description	Host-facing control surface for installing, activating, and sandboxing plugins.
//	@BasePath		/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package httpapi
