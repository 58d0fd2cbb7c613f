package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
	"task-manager/internal/service"
)

type authHandler struct {
	auth *service.AuthService
}

func (h *authHandler) register(c echo.Context) error {
	var in service.RegisterInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	session, err := h.auth.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *authHandler) login(c echo.Context) error {
	var in service.LoginInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	session, err := h.auth.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

func (h *authHandler) profile(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.auth.Profile(ctx, auth.IdentityFrom(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type userHandler struct {
	users *service.UserService
}

func (h *userHandler) list(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.users.List(ctx, auth.IdentityFrom(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (h *userHandler) get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	user, err := h.users.Get(ctx, auth.IdentityFrom(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *userHandler) update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in service.UpdateUserInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	user, err := h.users.Update(ctx, auth.IdentityFrom(ctx), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *userHandler) delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.users.Delete(ctx, auth.IdentityFrom(ctx), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User deleted successfully"})
}

// resourceHandler serves the five CRUD routes of one owner-scoped entity.
// deleted is the reply body after a delete; nil means 204 No Content.
type resourceHandler[T any] struct {
	res     *service.Resource[T]
	deleted echo.Map
}

func (h *resourceHandler[T]) list(c echo.Context) error {
	ctx := c.Request().Context()
	rows, err := h.res.List(ctx, auth.IdentityFrom(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *resourceHandler[T]) get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	row, err := h.res.Get(ctx, auth.IdentityFrom(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

func (h *resourceHandler[T]) create(c echo.Context) error {
	var payload service.Payload
	if err := decodeBody(c, &payload); err != nil {
		return err
	}
	ctx := c.Request().Context()
	row, err := h.res.Create(ctx, auth.IdentityFrom(ctx), payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *resourceHandler[T]) update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var payload service.Payload
	if err := decodeBody(c, &payload); err != nil {
		return err
	}
	ctx := c.Request().Context()
	row, err := h.res.Update(ctx, auth.IdentityFrom(ctx), id, payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

func (h *resourceHandler[T]) delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.res.Delete(ctx, auth.IdentityFrom(ctx), id); err != nil {
		return err
	}
	if h.deleted == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, h.deleted)
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id", "must be a positive integer")
	}
	return uint(id), nil
}

// decodeBody binds a JSON request body into dst with echo's binder. An empty
// body leaves dst untouched so the service reports the missing fields.
func decodeBody(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
			return apperr.Validation("body", "must be application/json")
		}
		return apperr.Validation("body", "malformed JSON")
	}
	return nil
}
