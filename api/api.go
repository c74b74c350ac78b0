package api

import (
	"net/http"

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/ledgerscan/ledgerscan/config"

	"github.com/ledgerscan/ledgerscan/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/ledgerscan/ledgerscan"
)

type Api struct {
	ledgerscan *ledgerscan.Ledgerscan
	router     *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/documents", a.SubmitDocument)
	router.GET("/documents", a.GetDocumentsByOwner)
	router.GET("/documents/:id", a.GetDocumentStatus)
	router.GET("/documents/:id/transactions", a.GetDocumentTransactions)
	router.GET("/documents/:id/original-url", a.GetOriginalDownloadURL)
	router.POST("/documents/:id/reprocess", a.ReprocessDocument)

	router.POST("/memory/turns", a.EnqueueMemoryTurn)
	router.GET("/memory/facts/:user_id", a.GetMemoryFacts)

	router.POST("/search/:collection", a.Search)
	return a.router
}

func NewAPI(l *ledgerscan.Ledgerscan) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{ledgerscan: l, router: r}
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.ledgerscan.Search(collection, &query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
