package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs --outputTypes go

// @title stagecheck API
// @version 0.1
// @description Upload redirect-planning sheets for staging page checks, or generate sheets from a live sitemap.
// @BasePath /
