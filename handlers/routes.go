package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the application routes on router.
func RegisterRoutes(router *gin.Engine, store Store, importPath string) {
	router.GET("/", Root)
	router.GET("/health", HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/questionnaires", ListQuestionnaires(store))
		api.POST("/questionnaires", CreateQuestionnaire(store))
		api.DELETE("/questionnaires/:id", DeleteQuestionnaire(store))
		api.GET("/questionnaires/:questionnaireId/questions", ListQuestionnaireQuestions(store))

		api.GET("/questions", ListQuestions(store))
		api.POST("/questions", CreateQuestion(store))
		api.DELETE("/questions/:id", DeleteQuestion(store))

		api.GET("/subjects", ListSubjects(store))
		api.POST("/subjects", CreateSubject(store))

		api.POST("/assignments", CreateAssignment(store))
		api.GET("/assignments/:subjectId", ListAssignments(store))

		api.GET("/reports", ListReports(store))
		api.POST("/reports", CreateReport(store))
		api.GET("/results/:subjectId/:questionnaireId", GetResult(store))

		api.POST("/responses", SubmitResponses(store))
	}

	admin := router.Group("/api/admin")
	{
		admin.POST("/import", TriggerImport(store, importPath))
	}
}
