package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
	"github.com/dhaarna97/BookSwap/internal/service/books"
)

func (a *API) handlePostBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var input books.PostBookInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, apperrors.Validation("invalid form data"))
			return
		}
		input = books.PostBookInput{
			Title:     r.FormValue("title"),
			Author:    r.FormValue("author"),
			Condition: r.FormValue("condition"),
			Image:     r.FormValue("image"),
		}

		file, header, err := formFile(r, "image")
		if err != nil {
			writeError(w, err)
			return
		}
		if file != nil {
			url, err := a.saveUpload(r, file, header)
			if err != nil {
				a.log.WithError(err).Error("image upload failed")
				writeError(w, apperrors.Internal("failed to store image", err))
				return
			}
			input.Image = url
		}
	} else {
		var body struct {
			Title     string `json:"title"`
			Author    string `json:"author"`
			Condition string `json:"condition"`
			Image     string `json:"image"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		input = books.PostBookInput(body)
	}

	created, err := a.books.PostBook(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Book posted successfully", created)
}

func (a *API) handleListBooks(w http.ResponseWriter, r *http.Request) {
	all, err := a.books.ListAllBooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Books retrieved successfully", all)
}

func (a *API) handleMyBooks(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	owned, err := a.books.ListMyBooks(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Your books retrieved successfully", owned)
}

func (a *API) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, err := a.books.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book retrieved successfully", found)
}

func (a *API) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id := mux.Vars(r)["id"]

	var body struct {
		Title     *string `json:"title"`
		Author    *string `json:"author"`
		Condition *string `json:"condition"`
		Image     *string `json:"image"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	updated, err := a.books.UpdateBook(r.Context(), id, userID, books.UpdateBookInput(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book updated successfully", updated)
}

func (a *API) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id := mux.Vars(r)["id"]

	deleted, err := a.books.DeleteBook(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book deleted successfully", deleted)
}

func (a *API) handleRequestBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id := mux.Vars(r)["id"]

	updated, err := a.books.RequestBook(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Book request sent successfully", updated)
}

func (a *API) handleResolveRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	vars := mux.Vars(r)

	resolved, err := a.books.ResolveRequest(r.Context(), vars["requestId"], vars["action"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Request "+vars["action"]+"ed successfully", resolved)
}

func (a *API) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	requestID := mux.Vars(r)["requestId"]

	cancelled, err := a.books.CancelRequest(r.Context(), requestID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Request cancelled successfully", cancelled)
}

func (a *API) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	rows, err := a.books.ListMyRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Your requests retrieved successfully", rows)
}

func (a *API) handleReceivedRequests(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	rows, err := a.books.ListReceivedRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Received requests retrieved successfully", rows)
}

func (a *API) handleBookRequests(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id := mux.Vars(r)["id"]

	view, err := a.books.ListBookRequests(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book requests retrieved successfully", view)
}
