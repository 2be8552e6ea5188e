package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Clearance API",
        "description": "Student clearance tracking: requirements, approvals, aggregate status and printable documents.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Clearance",
            "description": "Aggregate clearance records"
        },
        {
            "name": "Approvals",
            "description": "Submissions and approver decisions"
        },
        {
            "name": "Documents",
            "description": "Printable clearance documents and exports"
        },
        {
            "name": "Files",
            "description": "Submitted files and signature images"
        }
    ],
    "paths": {
        "/clearances": {
            "post": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Open a clearance record",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateClearanceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/events": {
            "get": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Status change notifications for every clearance (websocket)",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "101": {
                        "description": "Switching Protocols"
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}": {
            "get": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Aggregate clearance record",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/items": {
            "get": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Approval items of a clearance",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/requirements": {
            "get": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Resolved requirement descriptors",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/events": {
            "get": {
                "tags": [
                    "Clearance"
                ],
                "summary": "Status change notifications for one clearance (websocket)",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    }
                ],
                "responses": {
                    "101": {
                        "description": "Switching Protocols"
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/items/{kind}/{entityId}/validate": {
            "post": {
                "tags": [
                    "Approvals"
                ],
                "summary": "Check a submission without requesting approval",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    },
                    {
                        "name": "kind",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "subject or department"
                    },
                    {
                        "name": "entityId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmissionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/items/{kind}/{entityId}/request": {
            "post": {
                "tags": [
                    "Approvals"
                ],
                "summary": "Request approval for an item",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    },
                    {
                        "name": "kind",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "subject or department"
                    },
                    {
                        "name": "entityId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmissionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Submission does not satisfy the requirement",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/approvals/{itemId}/respond": {
            "post": {
                "tags": [
                    "Approvals"
                ],
                "summary": "Approve or reject a requested item",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "itemId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RespondApprovalRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/document": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Render the clearance document",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    },
                    {
                        "name": "layout",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "compact",
                            "detailed"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                },
                "produces": [
                    "application/pdf"
                ]
            }
        },
        "/clearances/{studentId}/{semester}/export": {
            "post": {
                "tags": [
                    "Documents"
                ],
                "summary": "Export the clearance as a stored PDF behind a signed link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Export already in progress",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/clearances/{studentId}/{semester}/roster": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Tabular listing of the approval items",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "semester",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "description": "1st or 2nd"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "xlsx",
                            "pdf"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                },
                "produces": [
                    "text/csv",
                    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
                    "application/pdf"
                ]
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Download an exported clearance via signed token",
                "produces": [
                    "application/pdf"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                }
            }
        },
        "/files/{ref}": {
            "get": {
                "tags": [
                    "Files"
                ],
                "summary": "Fetch a stored file by reference",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "ref",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                },
                "produces": [
                    "application/octet-stream"
                ]
            }
        }
    },
    "definitions": {
        "CreateClearanceRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "studentName": {
                    "type": "string"
                },
                "semester": {
                    "type": "string"
                },
                "schoolYear": {
                    "type": "string"
                }
            },
            "required": [
                "studentId",
                "studentName",
                "semester",
                "schoolYear"
            ]
        },
        "Submission": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string",
                    "enum": [
                        "text",
                        "link",
                        "file",
                        "checklist",
                        "other"
                    ]
                },
                "fileRefs": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "notes": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                },
                "answers": {
                    "type": "array",
                    "items": {
                        "type": "boolean"
                    }
                }
            },
            "required": [
                "type"
            ]
        },
        "SubmissionRequest": {
            "type": "object",
            "properties": {
                "submission": {
                    "$ref": "#/definitions/Submission"
                }
            },
            "required": [
                "submission"
            ]
        },
        "RespondApprovalRequest": {
            "type": "object",
            "properties": {
                "decision": {
                    "type": "string",
                    "enum": [
                        "Approved",
                        "Rejected"
                    ]
                },
                "remarks": {
                    "type": "string"
                }
            },
            "required": [
                "decision"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
