// Package docs holds the Swagger spec served by the swagger build of runnerd.
// Regenerate with `swag init -g cmd/runnerd/docs.go -o docs` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {
            "get": {
                "description": "Lists packaged models discovered in the models directory.",
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List models",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/load": {
            "post": {
                "description": "Loads weights and tokenizer into the engine, either by registry id or by explicit paths.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Load a model",
                "parameters": [{"description": "Model to load", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.LoadRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/loaded": {
            "get": {
                "description": "Queries the engine live; a fresh server reports false.",
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Check whether a model is loaded",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoadedResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/generate": {
            "post": {
                "description": "Streams NDJSON: one {\"token\"} line per token, then {\"done\":true,...} or {\"error\":...}.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["generate"],
                "summary": "Generate text",
                "parameters": [{"description": "Prompt and options", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TokenLine"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {"type": "object", "properties": {"code": {"type": "integer", "example": 400}, "error": {"type": "string", "example": "invalid JSON body"}}},
        "types.GenerateRequest": {"type": "object", "properties": {"echo": {"type": "boolean"}, "max_new_tokens": {"type": "integer"}, "prompt": {"type": "string", "example": "Hey everyone,"}, "temperature": {"type": "number"}}},
        "types.LoadRequest": {"type": "object", "properties": {"model": {"type": "string", "example": "smollm2-135m-xnnpack.pte"}, "model_path": {"type": "string"}, "tokenizer_path": {"type": "string"}, "tokenizer_type": {"type": "string", "example": "huggingface"}}},
        "types.LoadResponse": {"type": "object", "properties": {"handle": {"type": "string"}, "state": {"type": "string", "example": "loaded"}}},
        "types.LoadedResponse": {"type": "object", "properties": {"loaded": {"type": "boolean", "example": true}}},
        "types.Model": {"type": "object", "properties": {"format": {"type": "string", "example": "pte"}, "id": {"type": "string"}, "path": {"type": "string"}, "tokenizer_path": {"type": "string"}, "tokenizer_type": {"type": "string"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.TokenLine": {"type": "object", "properties": {"token": {"type": "string", "example": "Hello"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "runnerd API",
	Description:      "HTTP API for loading a model into an inference engine and streaming generations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
