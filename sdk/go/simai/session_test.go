// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
	"github.com/simai-sdk/simai-go/sdk/go/simaitest"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&SessionSuite{})

type SessionSuite struct {
	api     *simaitest.StubAPI
	session *Session
	ctx     context.Context
}

func (s *SessionSuite) SetUpTest(c *check.C) {
	s.api = simaitest.NewStubAPI(c)
	s.session = NewSession(stubClient(s.api))
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
}

func (s *SessionSuite) TearDownTest(c *check.C) {
	s.api.Close()
}

func (s *SessionSuite) lastBody(c *check.C, path string) map[string]interface{} {
	reqs := s.api.Requests(path)
	c.Assert(reqs, check.Not(check.HasLen), 0)
	var body map[string]interface{}
	c.Assert(json.Unmarshal(reqs[len(reqs)-1].Body, &body), check.IsNil)
	return body
}

func (s *SessionSuite) TestTrainingDataIter(c *check.C) {
	s.api.SetCollection("training-data", fakeRecords(3))
	it, err := s.session.TrainingData.Iter(s.ctx, Equalities{"state": "successful"})
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 3)
	var names []string
	for it.Next(s.ctx) {
		td := it.Model()
		names = append(names, td.Name())
		c.Check(td.IsReady(), check.Equals, true)
		c.Check(td.HasFailed(), check.Equals, false)
	}
	c.Check(it.Err(), check.IsNil)
	c.Check(names, check.DeepEquals, []string{"run 0", "run 1", "run 2"})

	reqs := s.api.Requests("training-data")
	c.Assert(reqs, check.HasLen, 2)
	for _, req := range reqs {
		c.Check(req.Query["filter[]"], check.DeepEquals, []string{`{"field":"state","operator":"EQ","value":"successful"}`})
		c.Check(req.Header.Get("X-Org"), check.Equals, "acme")
		c.Check(req.Header.Get("Authorization"), check.Equals, "Bearer stub-token")
	}
}

func (s *SessionSuite) TestTrainingDataListBadFilter(c *check.C) {
	_, err := s.session.TrainingData.List(s.ctx, Conditions{{"state", "NEQ", "failure"}})
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests(), check.HasLen, 0)
}

func (s *SessionSuite) TestIdentity(c *check.C) {
	s.api.SetCollection("training-data", fakeRecords(3))
	first, err := s.session.TrainingData.List(s.ctx, nil)
	c.Assert(err, check.IsNil)
	c.Assert(first, check.HasLen, 3)

	recs := fakeRecords(3)
	recs[1]["name"] = "renamed"
	recs[1]["state"] = "failure"
	recs[1]["error"] = "mesh is empty"
	s.api.SetCollection("training-data", recs)
	second, err := s.session.TrainingData.List(s.ctx, nil)
	c.Assert(err, check.IsNil)
	for i := range first {
		c.Check(second[i] == first[i], check.Equals, true)
	}
	c.Check(first[1].Name(), check.Equals, "renamed")
	c.Check(first[1].HasFailed(), check.Equals, true)
	c.Check(first[1].FailureReason(), check.Equals, "mesh is empty")
	c.Check(first[1].Fields()["name"], check.Equals, "renamed")
	c.Check(first[1].String(), check.Equals, "<TrainingData: td-1, renamed>")
}

func (s *SessionSuite) TestRegistryEviction(c *check.C) {
	s.session = NewSessionWithRegistrySize(s.session.Client, 2)
	a, err := s.session.Projects.ModelFrom(RawRecord{"id": "a"})
	c.Assert(err, check.IsNil)
	for _, id := range []string{"b", "c", "d"} {
		_, err := s.session.Projects.ModelFrom(RawRecord{"id": id})
		c.Assert(err, check.IsNil)
	}
	again, err := s.session.Projects.ModelFrom(RawRecord{"id": "a"})
	c.Assert(err, check.IsNil)
	c.Check(again == a, check.Equals, false)
}

func (s *SessionSuite) TestModelFromErrors(c *check.C) {
	_, err := s.session.Projects.ModelFrom(RawRecord{"name": "no id"})
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true)
	_, err = s.session.Projects.ModelFrom(RawRecord{"id": "p1", "name": map[string]interface{}{"nested": true}})
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true)

	p, err := s.session.TrainingDataParts.ModelFrom(RawRecord{"id": json.Number("42"), "size": json.Number("1000")})
	c.Assert(err, check.IsNil)
	c.Check(p.ID(), check.Equals, "42")
	c.Check(p.Size(), check.Equals, int64(1000))
}

func (s *SessionSuite) TestEmptyIDs(c *check.C) {
	_, err := s.session.Projects.Get(s.ctx, "")
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	_, err = s.session.TrainingData.Get(s.ctx, "")
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	err = s.session.Workspaces.Delete(s.ctx, "")
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	_, err = s.session.Predictions.List(s.ctx, "")
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests(), check.HasLen, 0)
}

func (s *SessionSuite) TestProjectGetByName(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "projects/name/{name}", http.StatusOK, map[string]interface{}{"id": "p1", "name": "wing tip"})
	p, err := s.session.Projects.GetByName(s.ctx, "wing tip")
	c.Assert(err, check.IsNil)
	c.Check(p.ID(), check.Equals, "p1")
	c.Check(p.Name(), check.Equals, "wing tip")
	c.Check(s.api.Requests("projects/name/wing tip"), check.HasLen, 1)
}

func (s *SessionSuite) TestProjectNotFound(c *check.C) {
	_, err := s.session.Projects.Get(s.ctx, "nope")
	c.Check(errors.Is(err, ErrNotFound), check.Equals, true)
}

func (s *SessionSuite) TestProjectData(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "projects/p1", http.StatusOK, map[string]interface{}{
		"id":     "p1",
		"name":   "wing",
		"sample": map[string]interface{}{"id": "td-0", "name": "run 0"},
	})
	s.api.SetCollection("projects/p1/data", fakeRecords(5))
	p, err := s.session.Projects.Get(s.ctx, "p1")
	c.Assert(err, check.IsNil)
	sample, err := p.Sample()
	c.Assert(err, check.IsNil)
	c.Check(sample.ID(), check.Equals, "td-0")

	it, err := p.Data(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 5)
	data, err := it.All(s.ctx)
	c.Assert(err, check.IsNil)
	c.Assert(data, check.HasLen, 5)
	c.Check(data[0] == sample, check.Equals, true)
	c.Check(s.api.Requests("projects/p1/data"), check.HasLen, 3)
}

func (s *SessionSuite) TestProjectDelete(c *check.C) {
	s.api.HandleJSON(http.MethodDelete, "projects/{id}", http.StatusNoContent, nil)
	p, err := s.session.Projects.ModelFrom(RawRecord{"id": "p1", "name": "wing"})
	c.Assert(err, check.IsNil)
	c.Assert(p.Delete(s.ctx), check.IsNil)
	again, err := s.session.Projects.ModelFrom(RawRecord{"id": "p1", "name": "wing"})
	c.Assert(err, check.IsNil)
	c.Check(again == p, check.Equals, false)
}

func (s *SessionSuite) TestSubset(c *check.C) {
	td, err := s.session.TrainingData.ModelFrom(RawRecord{"id": "td-0"})
	c.Assert(err, check.IsNil)

	s.api.HandleJSON(http.MethodPut, "projects/p1/data/td-0/subset", http.StatusNoContent, nil)
	c.Check(td.AssignSubset(s.ctx, "p1", SubsetTest), check.IsNil)
	c.Check(s.lastBody(c, "projects/p1/data/td-0/subset"), check.DeepEquals, map[string]interface{}{"subset": "Test"})
	c.Check(td.AssignSubset(s.ctx, "p1", SubsetNone), check.IsNil)
	c.Check(s.lastBody(c, "projects/p1/data/td-0/subset"), check.DeepEquals, map[string]interface{}{"subset": nil})

	err = td.AssignSubset(s.ctx, "p1", Subset("Validation"))
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests("projects/p1/data/td-0/subset"), check.HasLen, 2)

	s.api.HandleJSON(http.MethodGet, "projects/p1/data/td-0/subset", http.StatusOK, map[string]interface{}{"subset": "Training"})
	s.api.HandleJSON(http.MethodGet, "projects/p2/data/td-0/subset", http.StatusOK, map[string]interface{}{"subset": nil})
	s.api.HandleJSON(http.MethodGet, "projects/p3/data/td-0/subset", http.StatusOK, map[string]interface{}{"subset": "Bogus"})
	subset, err := td.Subset(s.ctx, "p1")
	c.Check(err, check.IsNil)
	c.Check(subset, check.Equals, SubsetTraining)
	subset, err = td.Subset(s.ctx, "p2")
	c.Check(err, check.IsNil)
	c.Check(subset, check.Equals, SubsetNone)
	_, err = td.Subset(s.ctx, "p3")
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true)
}

func (s *SessionSuite) TestTrainingDataCreate(c *check.C) {
	s.api.HandleJSON(http.MethodPost, "training-data/", http.StatusOK, map[string]interface{}{"id": "td-9", "name": "new", "state": "queued"})
	td, err := s.session.TrainingData.Create(s.ctx, "new", "p1")
	c.Assert(err, check.IsNil)
	c.Check(td.State(), check.Equals, "queued")
	c.Check(td.IsReady(), check.Equals, false)
	c.Check(s.lastBody(c, "training-data/"), check.DeepEquals, map[string]interface{}{"name": "new", "project": "p1"})
}

func (s *SessionSuite) TestBuildNotTrainable(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "projects/p1", http.StatusOK, map[string]interface{}{"id": "p1", "name": "wing"})
	s.api.HandleJSON(http.MethodGet, "projects/p1/trainable", http.StatusOK, map[string]interface{}{"is_trainable": false, "reason": "not enough data"})
	_, err := s.session.Models.Build(s.ctx, "p1", RawRecord{"boundary_conditions": map[string]interface{}{}}, BuildOptions{})
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*not enough data`)
	c.Check(s.api.Requests("projects/p1/model"), check.HasLen, 0)
}

func (s *SessionSuite) TestBuild(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "projects/p1", http.StatusOK, map[string]interface{}{"id": "p1", "name": "wing"})
	s.api.HandleJSON(http.MethodGet, "projects/p1/trainable", http.StatusOK, map[string]interface{}{"is_trainable": true})
	s.api.HandleJSON(http.MethodPost, "projects/p1/model", http.StatusOK, map[string]interface{}{"id": "m1", "project_id": "p1", "state": "requested"})
	m, err := s.session.Models.Build(s.ctx, "p1", RawRecord{"fields": []string{"Pressure"}}, BuildOptions{DismissDataWithVolumeOverflow: true})
	c.Assert(err, check.IsNil)
	c.Check(m.ProjectID(), check.Equals, "p1")
	c.Check(m.State(), check.Equals, "requested")
	reqs := s.api.Requests("projects/p1/model")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Query.Get("dismiss_data_with_volume_overflow"), check.Equals, "true")
	c.Check(s.lastBody(c, "projects/p1/model"), check.DeepEquals, map[string]interface{}{"fields": []interface{}{"Pressure"}})

	_, err = s.session.Models.Build(s.ctx, "p1", nil, BuildOptions{})
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
}

func (s *SessionSuite) TestWorkspacePredictions(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "workspaces/w1", http.StatusOK, map[string]interface{}{"id": "w1", "name": "prod", "model": "m1"})
	s.api.HandleJSON(http.MethodGet, "predictions/", http.StatusOK, []map[string]interface{}{
		{"id": "pr1", "geometry_id": "g1", "state": "successful", "confidence_score": "high"},
		{"id": "pr2", "geometry_id": "g2", "state": "cancelled"},
	})
	ws, err := s.session.Workspaces.Get(s.ctx, "w1")
	c.Assert(err, check.IsNil)
	c.Check(ws.ModelID(), check.Equals, "m1")
	preds, err := ws.Predictions(s.ctx)
	c.Assert(err, check.IsNil)
	c.Assert(preds, check.HasLen, 2)
	c.Check(preds[0].IsReady(), check.Equals, true)
	c.Check(preds[0].ConfidenceScore(), check.Equals, "high")
	c.Check(preds[1].HasFailed(), check.Equals, true)
	reqs := s.api.Requests("predictions/")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Query.Get("workspace"), check.Equals, "w1")
}

func (s *SessionSuite) methods(path string) []string {
	var methods []string
	for _, req := range s.api.Requests(path) {
		methods = append(methods, req.Method)
	}
	return methods
}

func (s *SessionSuite) TestProjectRename(c *check.C) {
	s.api.HandleJSON(http.MethodPatch, "projects/{id}", http.StatusNoContent, nil)
	s.api.HandleJSON(http.MethodGet, "projects/p1", http.StatusOK, map[string]interface{}{"id": "p1", "name": "fuselage"})
	p, err := s.session.Projects.ModelFrom(RawRecord{"id": "p1", "name": "wing"})
	c.Assert(err, check.IsNil)
	c.Assert(p.Rename(s.ctx, "fuselage"), check.IsNil)
	c.Check(p.Name(), check.Equals, "fuselage")
	c.Check(s.methods("projects/p1"), check.DeepEquals, []string{http.MethodPatch, http.MethodGet})
	c.Check(s.api.Requests("projects/p1")[0].Body, check.DeepEquals, []byte(`{"name":"fuselage"}`))
}

func (s *SessionSuite) TestProjectSetSample(c *check.C) {
	s.api.HandleJSON(http.MethodPut, "projects/p1/sample", http.StatusNoContent, nil)
	s.api.HandleJSON(http.MethodGet, "projects/p1", http.StatusOK, map[string]interface{}{
		"id":     "p1",
		"name":   "wing",
		"sample": map[string]interface{}{"id": "td-3", "name": "run 3"},
	})
	p, err := s.session.Projects.ModelFrom(RawRecord{"id": "p1", "name": "wing"})
	c.Assert(err, check.IsNil)
	sample, err := p.Sample()
	c.Assert(err, check.IsNil)
	c.Check(sample, check.IsNil)

	c.Assert(p.SetSample(s.ctx, "td-3"), check.IsNil)
	reqs := s.api.Requests("projects/p1/sample")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Method, check.Equals, http.MethodPut)
	c.Check(s.lastBody(c, "projects/p1/sample"), check.DeepEquals, map[string]interface{}{"training_data": "td-3"})
	c.Check(s.methods("projects/p1"), check.DeepEquals, []string{http.MethodGet})
	sample, err = p.Sample()
	c.Assert(err, check.IsNil)
	c.Check(sample.ID(), check.Equals, "td-3")

	c.Check(errors.Is(p.SetSample(s.ctx, ""), ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests("projects/p1/sample"), check.HasLen, 1)
}

func (s *SessionSuite) TestProjectCancelBuild(c *check.C) {
	s.api.HandleJSON(http.MethodPost, "projects/p1/cancel-training", http.StatusNoContent, nil)
	p, err := s.session.Projects.ModelFrom(RawRecord{"id": "p1"})
	c.Assert(err, check.IsNil)
	c.Assert(p.CancelBuild(s.ctx), check.IsNil)
	reqs := s.api.Requests("projects/p1/cancel-training")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Method, check.Equals, http.MethodPost)
	c.Check(reqs[0].Body, check.HasLen, 0)
}

func (s *SessionSuite) TestTrainingDataProjectAssociation(c *check.C) {
	s.api.HandleJSON(http.MethodPut, "training-data/{id}/project/{project}/association", http.StatusNoContent, nil)
	s.api.HandleJSON(http.MethodDelete, "training-data/{id}/project/{project}/association", http.StatusNoContent, nil)
	s.api.HandleJSON(http.MethodPost, "training-data/{id}/compute", http.StatusNoContent, nil)
	td, err := s.session.TrainingData.ModelFrom(RawRecord{"id": "td-0"})
	c.Assert(err, check.IsNil)

	c.Check(td.AddToProject(s.ctx, "p1"), check.IsNil)
	c.Check(td.RemoveFromProject(s.ctx, "p1"), check.IsNil)
	c.Check(s.methods("training-data/td-0/project/p1/association"), check.DeepEquals, []string{http.MethodPut, http.MethodDelete})
	for _, req := range s.api.Requests("training-data/td-0/project/p1/association") {
		c.Check(req.Body, check.HasLen, 0)
	}

	c.Check(td.ExtractData(s.ctx), check.IsNil)
	c.Check(s.methods("training-data/td-0/compute"), check.DeepEquals, []string{http.MethodPost})

	c.Check(errors.Is(td.AddToProject(s.ctx, ""), ErrInvalidArgument), check.Equals, true)
	c.Check(errors.Is(td.RemoveFromProject(s.ctx, ""), ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests(), check.HasLen, 3)
}

func (s *SessionSuite) TestWorkspaceCreate(c *check.C) {
	s.api.HandleJSON(http.MethodPost, "workspaces/", http.StatusOK, map[string]interface{}{"id": "w1", "name": "prod", "model": "m1"})
	ws, err := s.session.Workspaces.Create(s.ctx, "prod", "m1")
	c.Assert(err, check.IsNil)
	c.Check(ws.ID(), check.Equals, "w1")
	c.Check(ws.String(), check.Equals, "<Workspace: w1, prod>")
	c.Check(s.methods("workspaces/"), check.DeepEquals, []string{http.MethodPost})
	c.Check(s.lastBody(c, "workspaces/"), check.DeepEquals, map[string]interface{}{"name": "prod", "model": "m1"})

	_, err = s.session.Workspaces.Create(s.ctx, "prod", "")
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(s.api.Requests("workspaces/"), check.HasLen, 1)
}

func (s *SessionSuite) TestWorkspaceGetByName(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "workspaces/name/{name}", http.StatusOK, map[string]interface{}{"id": "w1", "name": "prod eu", "model": "m1"})
	ws, err := s.session.Workspaces.GetByName(s.ctx, "prod eu")
	c.Assert(err, check.IsNil)
	c.Check(ws.Name(), check.Equals, "prod eu")
	reqs := s.api.Requests("workspaces/name/prod eu")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Method, check.Equals, http.MethodGet)
}

func (s *SessionSuite) TestWorkspaceModelManifest(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "workspaces/w1/model/manifest/public", http.StatusOK, map[string]interface{}{
		"boundary_conditions": map[string]interface{}{"Vx": map[string]interface{}{"unit": "m/s"}},
	})
	ws, err := s.session.Workspaces.ModelFrom(RawRecord{"id": "w1", "name": "prod", "model": "m1"})
	c.Assert(err, check.IsNil)
	manifest, err := ws.ModelManifest(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(manifest["boundary_conditions"], check.DeepEquals, map[string]interface{}{"Vx": map[string]interface{}{"unit": "m/s"}})
	c.Check(s.methods("workspaces/w1/model/manifest/public"), check.DeepEquals, []string{http.MethodGet})
}

func (s *SessionSuite) TestPredictionDelete(c *check.C) {
	s.api.HandleJSON(http.MethodDelete, "predictions/{id}", http.StatusNoContent, nil)
	pred, err := s.session.Predictions.ModelFrom(RawRecord{"id": "pr1", "state": "successful"})
	c.Assert(err, check.IsNil)
	c.Assert(pred.Delete(s.ctx), check.IsNil)
	reqs := s.api.Requests("predictions/pr1")
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Method, check.Equals, http.MethodDelete)
	c.Check(reqs[0].Query, check.DeepEquals, url.Values{"confirm": {"true"}})
	again, err := s.session.Predictions.ModelFrom(RawRecord{"id": "pr1"})
	c.Assert(err, check.IsNil)
	c.Check(again == pred, check.Equals, false)
}

func (s *SessionSuite) TestRetriesIdempotentRequestsOnly(c *check.C) {
	s.session.Client.Client = NewRetryingHTTPClient(http.DefaultTransport, 3)

	// The first POST fails, and would succeed if it were repeated.
	s.api.Router.HandleFunc(simaitest.APIPrefix+"projects", func(w http.ResponseWriter, req *http.Request) {
		if len(s.api.Requests("projects")) == 1 {
			simaitest.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "database is locked"})
			return
		}
		simaitest.WriteJSON(w, http.StatusCreated, map[string]string{"id": "p1", "name": "wing"})
	}).Methods(http.MethodPost)
	_, err := s.session.Projects.Create(s.ctx, "wing")
	var terr *TransactionError
	c.Assert(errors.As(err, &terr), check.Equals, true)
	c.Check(terr.StatusCode, check.Equals, http.StatusInternalServerError)
	c.Check(s.api.Requests("projects"), check.HasLen, 1)

	s.api.Router.HandleFunc(simaitest.APIPrefix+"projects/p1", func(w http.ResponseWriter, req *http.Request) {
		if len(s.api.Requests("projects/p1")) < 3 {
			w.Header().Set("Retry-After", "0")
			simaitest.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "maintenance"})
			return
		}
		simaitest.WriteJSON(w, http.StatusOK, map[string]string{"id": "p1", "name": "wing"})
	}).Methods(http.MethodGet)
	p, err := s.session.Projects.Get(s.ctx, "p1")
	c.Assert(err, check.IsNil)
	c.Check(p.Name(), check.Equals, "wing")
	c.Check(s.api.Requests("projects/p1"), check.HasLen, 3)

	// 500 is not a status worth repeating even an idempotent
	// request for.
	s.api.HandleJSON(http.MethodGet, "projects/p2", http.StatusInternalServerError, map[string]string{"message": "boom"})
	_, err = s.session.Projects.Get(s.ctx, "p2")
	c.Assert(errors.As(err, &terr), check.Equals, true)
	c.Check(terr.StatusCode, check.Equals, http.StatusInternalServerError)
	c.Check(s.api.Requests("projects/p2"), check.HasLen, 1)
}
