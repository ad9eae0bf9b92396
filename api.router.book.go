package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects book related the api endpoints. The router does not
// allow a static segment next to a named parameter so the named queries under
// /books are dispatched by BookResource, BookLookup and BookStockAction.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))

	router.POST("/books", m.public(api.CreateBook))
	router.GET("/books", m.public(api.GetAllBooks))
	router.GET("/books/:id", m.public(api.BookResource))
	router.PUT("/books/:id", m.public(api.UpdateBook))
	router.DELETE("/books/:id", m.public(api.DeleteOneBook))
	router.GET("/books/:id/:value", m.public(api.BookLookup))
	router.POST("/books/:id/:action", m.public(api.BookStockAction))
	return router
}
