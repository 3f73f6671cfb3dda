package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/course"
	"github.com/pot-code/course-progress/internal/progression"
)

// LessonCatalog course structure with lookup by lesson id
type LessonCatalog interface {
	progression.Catalog
	Lesson(lessonID int) (progression.Lesson, progression.Module, bool)
}

// CourseHandler course structure and lesson materials
type CourseHandler struct {
	Catalog   LessonCatalog
	Materials *course.MaterialStore
}

type lessonReply struct {
	progression.Lesson
	ModuleID    int    `json:"moduleId"`
	ModuleTitle string `json:"moduleTitle"`
}

// NewCourseHandler .
func NewCourseHandler(Catalog LessonCatalog, Materials *course.MaterialStore) *CourseHandler {
	return &CourseHandler{Catalog: Catalog, Materials: Materials}
}

// HandleGetModules reply the whole course, modules in unlock order
func (ch *CourseHandler) HandleGetModules(c echo.Context) error {
	course, err := ch.Catalog.FetchCourse(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

// HandleGetLesson reply one lesson together with the module it belongs to
func (ch *CourseHandler) HandleGetLesson(c echo.Context) error {
	lessonID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return replyError(c, http.StatusBadRequest, "lesson id must be an integer")
	}
	lesson, module, ok := ch.Catalog.Lesson(lessonID)
	if !ok {
		return replyError(c, http.StatusNotFound, "lesson not found")
	}
	return c.JSON(http.StatusOK, &lessonReply{Lesson: lesson, ModuleID: module.ID, ModuleTitle: module.Title})
}

// HandleCheckFile report whether a lesson material file is available
func (ch *CourseHandler) HandleCheckFile(c echo.Context) error {
	info, err := ch.Materials.Check(c.Param("name"))
	if errors.Is(err, course.ErrInvalidMaterialName) {
		return replyError(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}
