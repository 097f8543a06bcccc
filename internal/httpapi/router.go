// Package httpapi is the HTTP/REST surface spec.md §1 names as an
// out-of-scope external collaborator ("the HTTP/REST surface that
// receives submissions"): a thin gin-gonic/gin router translating
// submit_task/get_task/cancel_task/list_tasks requests into calls on
// the core (Selector + Registry).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mjproxy/core/internal/account"
	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/selector"
	"github.com/mjproxy/core/internal/store"
)

// maxWait caps how long getTask's ?wait= long-poll will block, so one
// slow client can't tie up a handler goroutine indefinitely.
const maxWait = 30 * time.Second

// Core is the narrow surface the router needs from the registry
// (kept as an interface so tests don't need a live gateway/account
// fleet).
type Core interface {
	Select(f selector.Filter) (string, error)
	Submit(accountID string, t *model.Task) (account.SubmitResult, error)
	Cancel(accountID, taskID string, cancelAttempt func() error) bool
	Wait(ctx context.Context, accountID, taskID string, timeout time.Duration) (*model.Task, bool)
}

// SubmitTaskRequest is the JSON body for POST /task/submit.
type SubmitTaskRequest struct {
	Action     model.Action      `json:"action" binding:"required"`
	Prompt     string            `json:"prompt"`
	ParentID   string            `json:"parentId"`
	BotType    model.BotType     `json:"botType"`
	UserID     string            `json:"userId"`
	NotifyHook string            `json:"notifyHook"`
	State      string            `json:"state"`
	Properties map[string]string `json:"properties"`
}

// Router wires the four operations named in spec.md §1 onto a gin
// engine: submit_task, get_task, cancel_task, list_tasks.
type Router struct {
	core  Core
	tasks store.TaskCollection
}

// New builds a Router.
func New(core Core, tasks store.TaskCollection) *Router {
	return &Router{core: core, tasks: tasks}
}

// Register attaches every route onto the given engine.
func (rt *Router) Register(engine *gin.Engine) {
	engine.POST("/task/submit", rt.submitTask)
	engine.GET("/task/:id", rt.getTask)
	engine.POST("/task/:id/cancel", rt.cancelTask)
	engine.GET("/tasks", rt.listTasks)
}

func (rt *Router) submitTask(c *gin.Context) {
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accountID, err := rt.core.Select(selector.Filter{BotType: req.BotType})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	tk := model.NewTask(uuid.NewString())
	tk.Action = req.Action
	tk.Prompt = req.Prompt
	tk.PromptFull = req.Prompt
	tk.ParentID = req.ParentID
	tk.BotType = req.BotType
	tk.RealBotType = req.BotType
	tk.UserID = req.UserID
	tk.ClientIP = c.ClientIP()
	tk.NotifyHook = req.NotifyHook
	tk.State = req.State
	tk.Properties = req.Properties
	tk.Nonce = uuid.NewString()

	result, err := rt.core.Submit(accountID, tk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result != account.Accepted {
		c.JSON(http.StatusTooManyRequests, gin.H{"result": result.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": tk.ID, "accountId": accountID})
}

func (rt *Router) getTask(c *gin.Context) {
	id := c.Param("id")
	tk, err := rt.tasks.GetByID(context.Background(), id)
	if err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// ?wait=<duration> long-polls for a terminal transition instead of
	// returning the current (possibly still in-progress) snapshot.
	if raw := c.Query("wait"); raw != "" && !tk.Status.Terminal() {
		d, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wait duration"})
			return
		}
		if d > maxWait {
			d = maxWait
		}
		if live, ok := rt.core.Wait(c.Request.Context(), tk.InstanceID, id, d); ok {
			tk = live
		} else if fresh, err := rt.tasks.GetByID(context.Background(), id); err == nil {
			tk = fresh
		}
	}

	c.JSON(http.StatusOK, tk)
}

func (rt *Router) cancelTask(c *gin.Context) {
	id := c.Param("id")
	tk, err := rt.tasks.GetByID(context.Background(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	ok := rt.core.Cancel(tk.InstanceID, id, nil)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "task not cancellable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "cancel"})
}

func (rt *Router) listTasks(c *gin.Context) {
	p := store.Predicate{UserID: c.Query("userId"), Status: model.Status(c.Query("status"))}
	tasks, err := rt.tasks.Find(context.Background(), p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}
