package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Mail Webhook Renewal API",
        "description": "Keeps mailbox change-notification subscriptions alive for logged-in users",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "SessionAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Authentication", "description": "OAuth login and session"},
        {"name": "Subscriptions", "description": "Per-user mailbox subscription"},
        {"name": "Webhook", "description": "Provider callbacks"},
        {"name": "Renewal", "description": "Renewal engine operations"}
    ],
    "paths": {
        "/health": {
            "get": {"summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "A dependency is unavailable"}}
            }
        },
        "/auth/login": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Start login",
                "parameters": [{"name": "return_to", "in": "query", "type": "string"}],
                "responses": {"302": {"description": "Redirect to the identity provider"}}
            }
        },
        "/auth/callback": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Complete login",
                "parameters": [
                    {"name": "code", "in": "query", "type": "string", "required": true},
                    {"name": "state", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Code rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Forget stored OAuth tokens",
                "security": [{"SessionAuth": []}],
                "responses": {"204": {"description": "Logged out"}}
            }
        },
        "/auth/status": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Authentication status",
                "security": [{"SessionAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/messages": {
            "get": {
                "tags": ["Messages"],
                "summary": "Recent messages",
                "security": [{"SessionAuth": []}],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "top", "in": "query", "type": "integer", "minimum": 1, "maximum": 50}
                ],
                "responses": {
                    "200": {"description": "Newest messages first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Login required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider rejected the request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/subscriptions": {
            "get": {
                "tags": ["Subscriptions"],
                "summary": "Current subscription",
                "security": [{"SessionAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No subscription", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Subscriptions"],
                "summary": "Ensure subscription",
                "security": [{"SessionAuth": []}],
                "responses": {
                    "200": {"description": "Extended", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Login required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider rejected the request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Provider unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Subscriptions"],
                "summary": "Remove subscription",
                "security": [{"SessionAuth": []}],
                "responses": {"204": {"description": "Removed"}}
            }
        },
        "/webhook": {
            "get": {
                "tags": ["Webhook"],
                "summary": "Validation handshake or readiness",
                "parameters": [{"name": "validationToken", "in": "query", "type": "string"}],
                "produces": ["text/plain", "application/json"],
                "responses": {"200": {"description": "Token echoed or readiness payload"}}
            },
            "post": {
                "tags": ["Webhook"],
                "summary": "Receive change notifications",
                "parameters": [
                    {"name": "validationToken", "in": "query", "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/NotificationBatch"}}
                ],
                "responses": {
                    "200": {"description": "Token echoed"},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/internal/renewal/run": {
            "post": {
                "tags": ["Renewal"],
                "summary": "Run a renewal pass now",
                "security": [{"SessionAuth": []}],
                "responses": {"200": {"description": "Pass report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/internal/renewal/status": {
            "get": {
                "tags": ["Renewal"],
                "summary": "Renewal engine status",
                "security": [{"SessionAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "ChangeNotification": {
            "type": "object",
            "properties": {
                "subscriptionId": {"type": "string"},
                "changeType": {"type": "string"},
                "resource": {"type": "string"},
                "clientState": {"type": "string"},
                "tenantId": {"type": "string"},
                "subscriptionExpirationDateTime": {"type": "string"}
            },
            "required": ["changeType"]
        },
        "NotificationBatch": {
            "type": "object",
            "properties": {
                "value": {"type": "array", "items": {"$ref": "#/definitions/ChangeNotification"}}
            },
            "required": ["value"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
