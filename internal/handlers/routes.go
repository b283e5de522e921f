package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the form and page endpoints on an authenticated
// group. saveMiddleware runs in front of the save endpoint only.
func RegisterRoutes(api *gin.RouterGroup, forms *FormHandler, pages *PageHandler, saveMiddleware ...gin.HandlerFunc) {
	formRoutes := api.Group("/forms")
	{
		formRoutes.POST("/save", append(saveMiddleware, forms.Save)...)
		formRoutes.GET("/:id/pages", forms.ListPages)
		formRoutes.GET("/:id/pages/:page", forms.GetPage)

		formRoutes.POST("/:id/pages", pages.Create)
		formRoutes.PUT("/:id/pages/order", pages.Reorder)
		formRoutes.POST("/:id/pages/buttons", pages.CheckButtons)
		formRoutes.PUT("/:id/pages/:page", pages.Rename)
		formRoutes.DELETE("/:id/pages/:page", pages.Delete)
		formRoutes.POST("/:id/pages/:page/duplicate", pages.Duplicate)
		formRoutes.PUT("/:id/pages/:page/first", pages.SetFirst)
		formRoutes.GET("/:id/pages/:page/copy-code", pages.CopyCode)
	}
}
