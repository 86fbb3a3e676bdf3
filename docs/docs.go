// Package docs описание HTTP API для swagger UI
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
        "/api/v1/batches": {
            "post": {
                "description": "Получает исходные объявления, создает черновики с половинной ценой и возвращает партию с билетом для публикации",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Создать черновики",
                "parameters": [
                    {
                        "description": "Токен маркетплейса, профиль доставки и список URL",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.createBatchRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        },
        "/api/v1/batches/publish": {
            "post": {
                "description": "Ждет обработки фотографий и публикует все черновики партии. Повторный запуск ничего не делает",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Опубликовать черновики",
                "parameters": [
                    {
                        "description": "Токен маркетплейса и билет партии",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.publishBatchRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        },
        "/api/v1/batches/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Сводка по партии",
                "parameters": [
                    {"type": "string", "description": "ID партии", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        },
        "/api/v1/batches/{id}/events": {
            "get": {
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "События партии",
                "parameters": [
                    {"type": "string", "description": "ID партии", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Номер страницы", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Размер страницы", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        },
        "/auth/login": {
            "get": {
                "tags": ["auth"],
                "summary": "Вход оператора",
                "responses": {"302": {"description": "Found"}}
            }
        },
        "/auth/callback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Завершение входа оператора",
                "parameters": [
                    {"type": "string", "description": "state", "name": "state", "in": "query", "required": true},
                    {"type": "string", "description": "code", "name": "code", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.createBatchRequest": {
            "type": "object",
            "properties": {
                "api_token": {"type": "string"},
                "shipping_profile_id": {"type": "string"},
                "urls": {"type": "string"}
            }
        },
        "handlers.publishBatchRequest": {
            "type": "object",
            "properties": {
                "api_token": {"type": "string"},
                "ticket": {"type": "string"}
            }
        },
        "handlers.errorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.response": {
            "type": "object",
            "properties": {
                "data": {},
                "meta": {},
                "success": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo информация об API
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Listing Cloner API",
	Description:      "Клонирование объявлений маркетплейса: черновики с половинной ценой и их публикация",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
