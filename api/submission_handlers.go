package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"formdesk/auth"
	"formdesk/core"
	"formdesk/metrics"
	"formdesk/storage"

	"github.com/gorilla/mux"
)

const (
	sourcePublic = "public"
	sourceAdmin  = "admin"
)

// submissionRequest is a contact form entry as posted by a visitor or an admin.
type submissionRequest struct {
	Name    string  `json:"name" validate:"required,min=2,max=255"`
	Email   string  `json:"email" validate:"required,email,max=254"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Message string  `json:"message" validate:"required,min=10,max=1000"`
}

func (req *submissionRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			req.Phone = nil
		} else {
			req.Phone = &phone
		}
	}
}

type submissionCreatedResponse struct {
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id"`
}

type statusUpdateRequest struct {
	SubmissionID string `json:"submission_id" validate:"required,uuid"`
	Status       string `json:"status" validate:"required,oneof=new in_progress done archived"`
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required,min=1,max=2000"`
}

// createContactSubmission handles the public contact form.
func (a *API) createContactSubmission(w http.ResponseWriter, r *http.Request) {
	a.saveSubmission(w, r, sourcePublic)
}

// createAdminSubmission lets an admin record a request received elsewhere.
func (a *API) createAdminSubmission(w http.ResponseWriter, r *http.Request) {
	a.saveSubmission(w, r, sourceAdmin)
}

func (a *API) saveSubmission(w http.ResponseWriter, r *http.Request, source string) {
	var req submissionRequest
	if err := a.decodeJSONBodyWithLimit(w, r, &req, a.maxBodyBytes()); err != nil {
		return
	}
	req.normalize()
	if err := a.validate.Struct(req); err != nil {
		a.respondJSON(w, codedResponse{Message: validationMessage(err), Code: "VALIDATION_ERROR"}, http.StatusBadRequest)
		return
	}

	sub := &core.Submission{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	}
	if err := a.submissions.SaveSubmission(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save submission", err, a.logger)
		return
	}

	metrics.SubmissionsReceived.WithLabelValues(source).Inc()
	a.respondJSON(w, submissionCreatedResponse{
		Message:      "Submission received",
		SubmissionID: sub.SubmissionID,
	}, http.StatusCreated)
}

// listSubmissions answers one page; malformed numbers fall back to defaults.
func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := core.ListParams{
		SortBy: q.Get("sort_by"),
		Order:  q.Get("order"),
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	page, err := a.submissions.ListSubmissions(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list submissions", err, a.logger)
		return
	}
	a.respondJSON(w, page, http.StatusOK)
}

func (a *API) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.submissions.GetStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load statistics", err, a.logger)
		return
	}
	a.respondJSON(w, stats, http.StatusOK)
}

func (a *API) updateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := a.decodeJSONBodyWithLimit(w, r, &req, a.maxBodyBytes()); err != nil {
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), err, a.logger)
		return
	}

	err := a.submissions.UpdateSubmissionStatus(r.Context(), req.SubmissionID, core.SubmissionStatus(req.Status))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Submission not found", err, a.logger)
	case errors.Is(err, storage.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "Invalid status", err, a.logger)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to update submission", err, a.logger)
	}
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid submission ID", err, a.logger)
		return
	}

	comments, err := a.submissions.ListComments(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Submission not found", err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to list comments", err, a.logger)
		return
	}
	a.respondJSON(w, comments, http.StatusOK)
}

// addComment attributes the comment to the admin of the current session.
func (a *API) addComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid submission ID", err, a.logger)
		return
	}

	var req commentRequest
	if err := a.decodeJSONBodyWithLimit(w, r, &req, a.maxBodyBytes()); err != nil {
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), err, a.logger)
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.MsgInvalidToken, nil, a.logger)
		return
	}

	comment, err := a.submissions.AddComment(r.Context(), id, claims.Subject, req.Comment)
	if err != nil {
		if errors.Is(err, storage.ErrConstraintViolation) || errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Submission not found", err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to add comment", err, a.logger)
		return
	}
	a.respondJSON(w, comment, http.StatusCreated)
}
