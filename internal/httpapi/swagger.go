package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"
	httpSwagger "github.com/swaggo/http-swagger"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events/raw": {
            "get": {
                "summary": "Pull the latest event",
                "description": "Returns the latest raw event, or the sub-event named by sub. Answers the 5-byte EMPTY sentinel before the first event.",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"type": "string", "name": "sub", "in": "query", "description": "sub-event identifier"}
                ],
                "responses": {"200": {"description": "event bytes"}}
            },
            "post": {
                "summary": "Push a raw event",
                "consumes": ["application/octet-stream", "application/json"],
                "responses": {
                    "202": {"description": "accepted"},
                    "400": {"description": "empty body", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "413": {"description": "body too large", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "collector not running", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "summary": "Collector status",
                "produces": ["application/json"],
                "responses": {"200": {"description": "status", "schema": {"$ref": "#/definitions/StatusResponse"}}}
            }
        },
        "/healthz": {"get": {"summary": "Liveness", "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"summary": "Readiness", "responses": {"200": {"description": "running"}, "503": {"description": "stopped"}}}},
        "/ws": {"get": {"summary": "Subscriber bus (websocket)", "responses": {"101": {"description": "switching protocols"}}}},
        "/producers": {
            "get": {
                "summary": "Producer stream (websocket, sync mode only)",
                "parameters": [
                    {"type": "string", "name": "name", "in": "query", "description": "producer id"}
                ],
                "responses": {"101": {"description": "switching protocols"}, "409": {"description": "producer already connected"}}
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}
        },
        "StatusResponse": {
            "type": "object",
            "properties": {
                "collector": {"type": "string"},
                "state": {"type": "string"},
                "has_event": {"type": "boolean"},
                "trigger_n": {"type": "integer"},
                "subscribers": {"type": "array", "items": {"type": "object"}},
                "producers": {"type": "array", "items": {"type": "object"}},
                "next_trigger": {"type": "integer"},
                "stats": {"type": "object"},
                "uptime_seconds": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "collectord API",
	Description:      "Event collector: raw event push and pull, status and health.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the API document and UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
