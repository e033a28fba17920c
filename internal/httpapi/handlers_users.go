package httpapi

import (
	"net/http"
	"strings"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
	"github.com/dhaarna97/BookSwap/internal/service/users"
)

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, apperrors.Validation("invalid form data"))
			return
		}
		input = users.RegisterInput{
			Name:            r.FormValue("name"),
			Email:           r.FormValue("email"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirmPassword"),
		}

		file, header, err := formFile(r, "avatar")
		if err != nil {
			writeError(w, err)
			return
		}
		if file != nil {
			url, err := a.saveUpload(r, file, header)
			if err != nil {
				a.log.WithError(err).Error("avatar upload failed")
				writeError(w, apperrors.Internal("failed to store avatar", err))
				return
			}
			input.Avatar = url
		}
	} else {
		var body struct {
			Name            string `json:"name"`
			Email           string `json:"email"`
			Password        string `json:"password"`
			ConfirmPassword string `json:"confirmPassword"`
			Avatar          string `json:"avatar"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		input = users.RegisterInput{
			Name:            body.Name,
			Email:           body.Email,
			Password:        body.Password,
			ConfirmPassword: body.ConfirmPassword,
			Avatar:          body.Avatar,
		}
	}

	created, err := a.users.Register(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User created successfully", created)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := a.users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Message: "Login successful",
		Data:    result.User,
		Token:   result.Token,
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("no authorization token provided"))
		return
	}

	profile, err := a.users.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User profile retrieved successfully", profile)
}

func (a *API) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := a.users.RequestOTP(r.Context(), body.Email); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Passcode sent", nil)
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := a.users.VerifyOTP(r.Context(), body.Email, body.Code); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Passcode verified", nil)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
