package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

type schoolApi struct {
	svc      *school.Service
	ledger   *payment.Ledger
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service, ledger *payment.Ledger, validate *validator.Validate) {
	api := schoolApi{svc: svc, ledger: ledger, validate: validate}
	access := accessMiddleware(allRoles, secretariat)

	cg := g.Group("/classes", jwt, access)
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass)
	cg.DELETE("/:id", api.destroyClass)

	sg := g.Group("/etudiants", jwt, access)
	sg.GET("", api.queryStudents)
	sg.POST("", api.createStudent)
	sg.GET("/:id", api.retrieveStudent)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.destroyStudent)
	sg.GET("/:id/situation", api.studentSituation)

	pg := g.Group("/parents", jwt, access)
	pg.GET("", api.queryParents)
	pg.POST("", api.createParent)
	pg.GET("/:id", api.retrieveParent)
	pg.PUT("/:id", api.updateParent)
	pg.DELETE("/:id", api.destroyParent)
}

// Classes

func (api *schoolApi) createClass(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.CreateClass(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	filter := new(school.ClassFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Class{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	class, err := api.svc.GetClassByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *schoolApi) createStudent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.svc.CreateStudent(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	filter := new(school.StudentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	student, err := api.svc.GetStudentByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) studentSituation(ctx echo.Context) error {
	c := ctx.Request().Context()
	student, err := api.svc.GetStudentByID(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	balance, err := api.ledger.BalanceOf(c, student)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	parents, err := api.svc.StudentParents(c, student)
	if err != nil {
		return errors.Wrap(err, "finding parents")
	}
	if parents == nil {
		parents = []school.Parent{}
	}
	return ctx.JSON(http.StatusOK, SituationResponse{Student: student, Balance: balance, Parents: parents})
}

// Parents

func (api *schoolApi) createParent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewParent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	parent, err := api.svc.CreateParent(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating parent")
	}
	return ctx.JSON(http.StatusCreated, parent)
}

func (api *schoolApi) queryParents(ctx echo.Context) error {
	filter := new(school.ParentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Parent{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	parents, err := api.svc.QueryParents(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	if parents == nil {
		parents = []school.Parent{}
	}
	return ctx.JSON(http.StatusOK, parents)
}

func (api *schoolApi) retrieveParent(ctx echo.Context) error {
	parent, err := api.svc.GetParentByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding parent by ID")
	}
	return ctx.JSON(http.StatusOK, parent)
}

func (api *schoolApi) updateParent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateParent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateParent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	parent, err := api.svc.UpdateParent(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating parent")
	}
	return ctx.JSON(http.StatusOK, parent)
}

func (api *schoolApi) destroyParent(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteParent(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type SituationResponse struct {
	Student school.Student  `json:"etudiant"`
	Balance payment.Balance `json:"situation"`
	Parents []school.Parent `json:"parents"`
}
