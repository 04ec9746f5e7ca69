package main

// General API documentation for swaggo. The served document is kept in
// internal/httpapi/swagger.go.
//
// @title           collectord API
// @version         1.0
// @description     HTTP surface of a detector event collector: status, raw event push and pull.
//
// @contact.name   collectord maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
