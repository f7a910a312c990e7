package rest

import (
	"fmt"
	"os"

	globalConfig "github.com/AzielCF/az-crm/config"
	coreconfig "github.com/AzielCF/az-crm/core/config"
	domainKnowledge "github.com/AzielCF/az-crm/domains/knowledge"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"
)

type Knowledge struct {
	Service domainKnowledge.IKnowledgeUsecase
}

func InitRestKnowledge(app fiber.Router, service domainKnowledge.IKnowledgeUsecase) Knowledge {
	rest := Knowledge{Service: service}
	app.Post("/knowledge/:tenantID/documents", rest.Upload)
	app.Get("/knowledge/:tenantID/documents", rest.ListDocuments)
	app.Post("/knowledge/:tenantID/documents/:docID/trash", rest.Trash)
	app.Post("/knowledge/:tenantID/documents/:docID/restore", rest.Restore)
	app.Delete("/knowledge/:tenantID/documents/:docID", rest.Delete)
	app.Get("/knowledge/:tenantID/search", rest.Search)
	return rest
}

func (handler *Knowledge) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		panic(pkgError.ValidationError("multipart field 'file' is required"))
	}

	uploadsDir := globalConfig.PathUploads
	if coreconfig.Global != nil {
		uploadsDir = coreconfig.Global.Paths.Uploads
	}

	// Staging en disco antes de extraer texto, igual que los adjuntos salientes.
	stagedPath := fmt.Sprintf("%s/%s", uploadsDir, fiberUtils.UUIDv4()+fileHeader.Filename)
	err = fasthttp.SaveMultipartFile(fileHeader, stagedPath)
	utils.PanicIfNeeded(err)
	defer func() {
		go utils.RemoveFile(1, stagedPath)
	}()

	data, err := os.ReadFile(stagedPath)
	utils.PanicIfNeeded(err)

	document, err := handler.Service.IngestFile(c.UserContext(), c.Params("tenantID"), fileHeader.Filename, data)
	utils.PanicIfNeeded(restError(err))

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Document ingested",
		Results: document,
	})
}

func (handler *Knowledge) ListDocuments(c *fiber.Ctx) error {
	includeTrashed := c.Query("include_trashed") == "true"

	documents, err := handler.Service.ListDocuments(c.UserContext(), c.Params("tenantID"), includeTrashed)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Documents fetched",
		Results: documents,
	})
}

func (handler *Knowledge) Trash(c *fiber.Ctx) error {
	err := handler.Service.TrashDocument(c.UserContext(), c.Params("tenantID"), c.Params("docID"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Document moved to trash",
	})
}

func (handler *Knowledge) Restore(c *fiber.Ctx) error {
	err := handler.Service.RestoreDocument(c.UserContext(), c.Params("tenantID"), c.Params("docID"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Document restored",
	})
}

func (handler *Knowledge) Delete(c *fiber.Ctx) error {
	err := handler.Service.DeleteDocument(c.UserContext(), c.Params("tenantID"), c.Params("docID"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Document deleted",
	})
}

func (handler *Knowledge) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		panic(pkgError.ValidationError("query parameter 'q' is required"))
	}

	chunks, err := handler.Service.SearchChunks(c.UserContext(), c.Params("tenantID"), query, queryInt(c, "top_k", 0))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Search completed",
		Results: chunks,
	})
}
