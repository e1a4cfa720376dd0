package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Marksheet API",
        "description": "Record class test scores and export ranked marks records as XLSX, PDF or CSV.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sessions", "description": "Marks record editing sessions"},
        {"name": "Roster", "description": "Student list entry and spreadsheet import"},
        {"name": "Tests", "description": "Test columns: name, date and maximum"},
        {"name": "Marks", "description": "Score entry"},
        {"name": "Reports", "description": "Computed ranks and file exports"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a marks record",
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid test maximum", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get a marks record",
                "parameters": [{"$ref": "#/parameters/SessionID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Clear a marks record",
                "parameters": [{"$ref": "#/parameters/SessionID"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/metadata": {
            "put": {
                "tags": ["Sessions"],
                "summary": "Replace report metadata",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Metadata"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/roster": {
            "put": {
                "tags": ["Roster"],
                "summary": "Replace the roster with typed names",
                "description": "An append-only extension keeps existing marks; any other change resets every mark.",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RosterRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/roster/upload": {
            "post": {
                "tags": ["Roster"],
                "summary": "Import the roster from a spreadsheet",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "sheet", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No name column", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/roster/sheets": {
            "post": {
                "tags": ["Roster"],
                "summary": "List worksheets of a workbook",
                "consumes": ["multipart/form-data"],
                "parameters": [{"name": "file", "in": "formData", "type": "file", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/tests": {
            "post": {
                "tags": ["Tests"],
                "summary": "Add a test column",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Test"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid maximum", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Tests"],
                "summary": "Define every test at once",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DefineTestsRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/tests/{test}": {
            "put": {
                "tags": ["Tests"],
                "summary": "Update test metadata",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "test", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Test"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Maximum below an existing mark", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/marks": {
            "put": {
                "tags": ["Marks"],
                "summary": "Set or clear one mark",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkEntry"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown student or test", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Mark out of range", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/marks/bulk": {
            "post": {
                "tags": ["Marks"],
                "summary": "Set many marks atomically",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkMarksRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/report": {
            "get": {
                "tags": ["Reports"],
                "summary": "Computed totals, percentages and ranks",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["roster", "rank"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/export/{format}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download the marks record",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/pdf", "text/csv"],
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "format", "in": "path", "type": "string", "required": true, "enum": ["xlsx", "pdf", "csv"]},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["roster", "rank"]},
                    {"name": "preamble", "in": "query", "type": "boolean"},
                    {"name": "max_in_header", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "412": {"description": "No tests defined", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "Recent report jobs of a session",
                "parameters": [
                    {"$ref": "#/parameters/SessionID"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/generate": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a report export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/status/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Report job status",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report",
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Ops"],
                "summary": "Aggregated service metrics",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "parameters": {
        "SessionID": {"name": "id", "in": "path", "type": "string", "required": true}
    },
    "definitions": {
        "Metadata": {
            "type": "object",
            "properties": {
                "district": {"type": "string"},
                "sector": {"type": "string"},
                "school": {"type": "string"},
                "class": {"type": "string"},
                "academic_year": {"type": "string"},
                "term": {"type": "string"},
                "subject": {"type": "string"},
                "teacher": {"type": "string"}
            }
        },
        "Test": {
            "type": "object",
            "required": ["name", "maximum"],
            "properties": {
                "name": {"type": "string"},
                "date": {"type": "string", "description": "YYYY-MM-DD or DD/MM/YYYY"},
                "maximum": {"type": "number", "minimum": 1}
            }
        },
        "CreateSessionRequest": {
            "type": "object",
            "properties": {
                "metadata": {"$ref": "#/definitions/Metadata"},
                "students": {"type": "array", "items": {"type": "string"}},
                "tests": {"type": "array", "items": {"$ref": "#/definitions/Test"}}
            }
        },
        "RosterRequest": {
            "type": "object",
            "required": ["students"],
            "properties": {
                "students": {"type": "array", "items": {"type": "string"}}
            }
        },
        "DefineTestsRequest": {
            "type": "object",
            "properties": {
                "tests": {"type": "array", "items": {"$ref": "#/definitions/Test"}}
            }
        },
        "MarkEntry": {
            "type": "object",
            "properties": {
                "student": {"type": "integer", "minimum": 0},
                "test": {"type": "integer", "minimum": 0},
                "value": {"type": "number", "x-nullable": true}
            }
        },
        "BulkMarksRequest": {
            "type": "object",
            "required": ["entries"],
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/MarkEntry"}}
            }
        },
        "ReportRequest": {
            "type": "object",
            "required": ["sessionId", "format"],
            "properties": {
                "sessionId": {"type": "string"},
                "format": {"type": "string", "enum": ["xlsx", "pdf", "csv"]},
                "sortByRank": {"type": "boolean"},
                "preamble": {"type": "boolean"},
                "maxInHeader": {"type": "boolean"},
                "requestedBy": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
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
