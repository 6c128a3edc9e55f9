// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}
                    }
                }
            }
        },
        "/jobs/check": {
            "post": {
                "description": "Uploads a CSV or XLSX sheet and classifies every row's staging link.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start a check job",
                "parameters": [
                    {
                        "type": "file",
                        "description": "Sheet with Theoretical Staging Link, Page Exists?, Scope and Status columns",
                        "name": "file",
                        "in": "formData",
                        "required": true
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/generate": {
            "post": {
                "description": "Resolves the site's sitemap and builds a check sheet for the staging host.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start a generate job",
                "parameters": [
                    {
                        "description": "Site and staging host",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.StartGenerateJobRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["jobs"],
                "summary": "Cancel a job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/{jobID}/download": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["jobs"],
                "summary": "Download a finished job's sheet",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string", "enum": ["check", "generate"]},
                "input": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "processed": {"type": "integer"},
                "total": {"type": "integer"},
                "summary": {"$ref": "#/definitions/checker.Summary"},
                "output_name": {"type": "string"},
                "run_id": {"type": "string"}
            }
        },
        "checker.Summary": {
            "type": "object",
            "properties": {
                "rows": {"type": "integer"},
                "probed": {"type": "integer"},
                "yes": {"type": "integer"},
                "not_found": {"type": "integer"},
                "no": {"type": "integer"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "job not found"}
            }
        },
        "server.StartGenerateJobRequest": {
            "type": "object",
            "properties": {
                "site": {"type": "string", "example": "www.example.com"},
                "staging_host": {"type": "string", "example": "staging.example.com"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "stagecheck API",
	Description:      "Upload redirect-planning sheets for staging page checks, or generate sheets from a live sitemap.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
