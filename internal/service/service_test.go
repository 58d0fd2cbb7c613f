package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
	"task-manager/internal/clock"
	"task-manager/internal/model"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
)

type testEnv struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	tokens    *auth.TokenService
	auth      *AuthService
	users     *UserService
	resources *Resources
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clk := clock.Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	tokens, err := auth.NewTokenService([]byte("test-secret"), 24*time.Hour, clk)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	userRepo := repository.NewUserRepository(db)

	return &testEnv{
		db:        db,
		clock:     clk,
		tokens:    tokens,
		auth:      NewAuthService(userRepo, hasher, tokens, log),
		users:     NewUserService(userRepo, hasher),
		resources: NewResources(db),
	}
}

func (e *testEnv) register(t *testing.T, name, email string) *auth.Identity {
	t.Helper()
	session, err := e.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "secret"})
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
	id, err := e.tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify token for %s: %v", email, err)
	}
	return &id
}

func payload(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("payload %s: %v", raw, err)
	}
	return p
}

func TestRegisterThenLogin_SameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered, err := env.auth.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered.Token == "" {
		t.Fatal("Register returned no token")
	}

	loggedIn, err := env.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loggedIn.User.ID != registered.User.ID {
		t.Fatalf("Login user id %d != registered id %d", loggedIn.User.ID, registered.User.ID)
	}

	encoded, _ := json.Marshal(loggedIn)
	if strings.Contains(string(encoded), "password") || strings.Contains(string(encoded), "$2") {
		t.Fatalf("session JSON leaks the password: %s", encoded)
	}
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "A", "a@x.com")

	_, err := env.auth.Register(ctx, RegisterInput{Name: "Other", Email: "a@x.com", Password: "different"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		in    RegisterInput
		field string
	}{
		{RegisterInput{Email: "a@x.com", Password: "p"}, "name"},
		{RegisterInput{Name: "A", Password: "p"}, "email"},
		{RegisterInput{Name: "A", Email: "a@x.com"}, "password"},
	}
	for _, tc := range tests {
		_, err := env.auth.Register(context.Background(), tc.in)
		if !apperr.IsValidation(err) {
			t.Fatalf("%+v: expected validation error, got %v", tc.in, err)
		}
		if fields := apperr.Fields(err); len(fields) != 1 || fields[0] != tc.field {
			t.Fatalf("%+v: fields = %v, want [%s]", tc.in, fields, tc.field)
		}
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "A", "a@x.com")

	_, wrongPassword := env.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "nope"})
	_, unknownEmail := env.auth.Login(ctx, LoginInput{Email: "ghost@x.com", Password: "secret"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		if !apperr.IsUnauthenticated(err) {
			t.Fatalf("expected unauthenticated, got %v", err)
		}
	}
	if apperr.Normalize(wrongPassword).Message != apperr.Normalize(unknownEmail).Message {
		t.Fatalf("login failures differ: %q vs %q",
			apperr.Normalize(wrongPassword).Message, apperr.Normalize(unknownEmail).Message)
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	user, err := env.auth.Profile(ctx, alice)
	if err != nil || user.Email != "alice@x.com" {
		t.Fatalf("Profile = %+v, %v", user, err)
	}
	if _, err := env.auth.Profile(ctx, nil); !apperr.IsUnauthenticated(err) {
		t.Fatalf("anonymous profile: expected unauthenticated, got %v", err)
	}
}

func TestCreate_BindsOwnerFromIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	raw := `{"name":"Work","user_id":` + jsonUint(bob.UserID) + `,"id":777}`
	category, err := env.resources.Categories.Create(ctx, alice, payload(t, raw))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if category.UserID != alice.UserID {
		t.Fatalf("owner = %d, want caller %d", category.UserID, alice.UserID)
	}

	var stored model.Category
	if err := env.db.First(&stored, category.ID).Error; err != nil {
		t.Fatalf("load stored category: %v", err)
	}
	if stored.UserID != alice.UserID {
		t.Fatalf("persisted owner = %d, want %d", stored.UserID, alice.UserID)
	}
	if stored.ID == 777 {
		t.Fatal("payload id must be ignored")
	}
}

func TestCreate_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.resources.Tasks.Create(context.Background(), nil, payload(t, `{"title":"x"}`))
	if !apperr.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if err := env.resources.Tasks.Delete(context.Background(), nil, 1); !apperr.IsUnauthenticated(err) {
		t.Fatalf("delete: expected unauthenticated, got %v", err)
	}
	if _, err := env.resources.Tasks.Update(context.Background(), nil, 1, Payload{}); !apperr.IsUnauthenticated(err) {
		t.Fatalf("update: expected unauthenticated, got %v", err)
	}
}

func TestCrossUserAccessIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	category, err := env.resources.Categories.Create(ctx, alice, payload(t, `{"name":"Work"}`))
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	task, err := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Plan"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	reminder, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Ping","reminder_time":"2026-03-02T09:00:00Z"}`))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	check := func(name string, get func() error, update func() error, del func() error) {
		t.Helper()
		if err := get(); !apperr.IsNotFound(err) {
			t.Errorf("%s get: expected not found, got %v", name, err)
		}
		if err := update(); !apperr.IsNotFound(err) {
			t.Errorf("%s update: expected not found, got %v", name, err)
		}
		if err := del(); !apperr.IsNotFound(err) {
			t.Errorf("%s delete: expected not found, got %v", name, err)
		}
	}

	check("category",
		func() error { _, err := env.resources.Categories.Get(ctx, bob, category.ID); return err },
		func() error {
			_, err := env.resources.Categories.Update(ctx, bob, category.ID, payload(t, `{"name":"Mine"}`))
			return err
		},
		func() error { return env.resources.Categories.Delete(ctx, bob, category.ID) },
	)
	check("task",
		func() error { _, err := env.resources.Tasks.Get(ctx, bob, task.ID); return err },
		func() error {
			_, err := env.resources.Tasks.Update(ctx, bob, task.ID, payload(t, `{"title":"Mine"}`))
			return err
		},
		func() error { return env.resources.Tasks.Delete(ctx, bob, task.ID) },
	)
	check("reminder",
		func() error { _, err := env.resources.Reminders.Get(ctx, bob, reminder.ID); return err },
		func() error {
			_, err := env.resources.Reminders.Update(ctx, bob, reminder.ID, payload(t, `{"is_sent":true}`))
			return err
		},
		func() error { return env.resources.Reminders.Delete(ctx, bob, reminder.ID) },
	)

	missing, err := env.resources.Categories.Get(ctx, bob, 424242)
	if !apperr.IsNotFound(err) || missing != nil {
		t.Fatalf("nonexistent id: expected not found, got %v", err)
	}
	if apperr.Normalize(err).Message != "Category not found" {
		t.Fatalf("message = %q", apperr.Normalize(err).Message)
	}

	got, err := env.resources.Tasks.Get(ctx, alice, task.ID)
	if err != nil || got.Title != "Plan" {
		t.Fatalf("owner's task changed: %+v, %v", got, err)
	}
}

func TestAnonymousReadsAreUnfiltered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	if _, err := env.resources.Categories.Create(ctx, alice, payload(t, `{"name":"A"}`)); err != nil {
		t.Fatal(err)
	}
	bobs, err := env.resources.Categories.Create(ctx, bob, payload(t, `{"name":"B"}`))
	if err != nil {
		t.Fatal(err)
	}

	all, err := env.resources.Categories.List(ctx, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("anonymous List = %d rows, %v; want 2", len(all), err)
	}
	own, err := env.resources.Categories.List(ctx, alice)
	if err != nil || len(own) != 1 || own[0].Name != "A" {
		t.Fatalf("List(alice) = %+v, %v", own, err)
	}
	if got, err := env.resources.Categories.Get(ctx, nil, bobs.ID); err != nil || got.Name != "B" {
		t.Fatalf("anonymous Get = %+v, %v", got, err)
	}
}

func TestUpdate_IsPartialAndKeepsOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	task, err := env.resources.Tasks.Create(ctx, alice, payload(t,
		`{"title":"Plan","description":"quarterly","priority":"high","due_date":"2026-03-10T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Fatalf("default status = %q", task.Status)
	}

	updated, err := env.resources.Tasks.Update(ctx, alice, task.ID, payload(t,
		`{"status":"in_progress","user_id":`+jsonUint(bob.UserID)+`}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var stored model.Task
	if err := env.db.First(&stored, task.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if stored.Status != model.TaskStatusInProgress {
		t.Errorf("status = %q, want in_progress", stored.Status)
	}
	if stored.Title != "Plan" || stored.Priority != model.PriorityHigh {
		t.Errorf("untouched fields changed: %+v", stored)
	}
	if stored.Description == nil || *stored.Description != "quarterly" {
		t.Errorf("description changed: %v", stored.Description)
	}
	if stored.DueDate == nil {
		t.Error("due_date was cleared")
	}
	if stored.UserID != alice.UserID || updated.UserID != alice.UserID {
		t.Errorf("owner changed to %d", stored.UserID)
	}

	if _, err := env.resources.Tasks.Update(ctx, alice, task.ID, payload(t, `{"description":null}`)); err != nil {
		t.Fatalf("clear description: %v", err)
	}
	env.db.First(&stored, task.ID)
	if stored.Description != nil {
		t.Errorf("description = %q, want NULL", *stored.Description)
	}
}

func TestUpdate_RejectsInvalidValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	task, err := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Plan"}`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		body  string
		field string
	}{
		{`{"status":"done"}`, "status"},
		{`{"priority":"urgent"}`, "priority"},
		{`{"title":""}`, "title"},
		{`{"due_date":"tomorrow"}`, "due_date"},
		{`{"category_id":"seven"}`, "category_id"},
	}
	for _, tc := range tests {
		_, err := env.resources.Tasks.Update(ctx, alice, task.ID, payload(t, tc.body))
		if !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.body, err)
			continue
		}
		if fields := apperr.Fields(err); len(fields) != 1 || fields[0] != tc.field {
			t.Errorf("%s: fields = %v, want [%s]", tc.body, fields, tc.field)
		}
	}
}

func TestTask_MayReferenceAnotherUsersCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	bobs, err := env.resources.Categories.Create(ctx, bob, payload(t, `{"name":"Bob's"}`))
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Borrow","category_id":`+jsonUint(bobs.ID)+`}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.CategoryID == nil || *task.CategoryID != bobs.ID {
		t.Fatalf("category_id = %v, want %d", task.CategoryID, bobs.ID)
	}

	_, err = env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Dangling","category_id":999}`))
	if !apperr.IsValidation(err) {
		t.Fatalf("nonexistent category: expected validation error, got %v", err)
	}
}

func TestReminder_CreateRequiresTimeAndIgnoresIsSent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	if _, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"No time"}`)); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reminder, err := env.resources.Reminders.Create(ctx, alice, payload(t,
		`{"title":"Ping","reminder_time":"2026-03-02T09:00:00Z","is_sent":true}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reminder.IsSent {
		t.Fatal("is_sent must not be settable on create")
	}

	updated, err := env.resources.Reminders.Update(ctx, alice, reminder.ID, payload(t, `{"is_sent":true}`))
	if err != nil || !updated.IsSent {
		t.Fatalf("Update is_sent = %+v, %v", updated, err)
	}
}

func TestDelete_SecondDeleteIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	category, err := env.resources.Categories.Create(ctx, alice, payload(t, `{"name":"Tmp"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.resources.Categories.Delete(ctx, alice, category.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := env.resources.Categories.Delete(ctx, alice, category.ID); !apperr.IsNotFound(err) {
		t.Fatalf("second Delete: expected not found, got %v", err)
	}
	if _, err := env.resources.Categories.Update(ctx, alice, category.ID, payload(t, `{"name":"Late"}`)); !apperr.IsNotFound(err) {
		t.Fatalf("Update after delete: expected not found, got %v", err)
	}
}

func TestUserService_SelfOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	if _, err := env.users.Get(ctx, bob, alice.UserID); !apperr.IsForbidden(err) {
		t.Fatalf("Get other: expected forbidden, got %v", err)
	}
	name := "Mallory"
	if _, err := env.users.Update(ctx, bob, alice.UserID, UpdateUserInput{Name: &name}); !apperr.IsForbidden(err) {
		t.Fatalf("Update other: expected forbidden, got %v", err)
	}
	if err := env.users.Delete(ctx, bob, alice.UserID); !apperr.IsForbidden(err) {
		t.Fatalf("Delete other: expected forbidden, got %v", err)
	}
	if _, err := env.users.Get(ctx, bob, 424242); !apperr.IsForbidden(err) {
		t.Fatalf("Get nonexistent other: expected forbidden, got %v", err)
	}

	self, err := env.users.Get(ctx, alice, alice.UserID)
	if err != nil || self.Name != "Alice" {
		t.Fatalf("Get self = %+v, %v", self, err)
	}

	all, err := env.users.List(ctx, alice)
	if err != nil || len(all) != 2 {
		t.Fatalf("List = %d users, %v", len(all), err)
	}
	if _, err := env.users.List(ctx, nil); !apperr.IsUnauthenticated(err) {
		t.Fatalf("anonymous List: expected unauthenticated, got %v", err)
	}
}

func TestUserService_UpdateRehashesAndDetectsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	env.register(t, "Bob", "bob@x.com")

	newPassword := "rotated"
	newName := "Alice Liddell"
	user, err := env.users.Update(ctx, alice, alice.UserID, UpdateUserInput{Name: &newName, Password: &newPassword})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if user.Name != newName {
		t.Fatalf("Name = %q", user.Name)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "alice@x.com", Password: "rotated"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "alice@x.com", Password: "secret"}); !apperr.IsUnauthenticated(err) {
		t.Fatalf("login with old password: expected unauthenticated, got %v", err)
	}

	taken := "bob@x.com"
	if _, err := env.users.Update(ctx, alice, alice.UserID, UpdateUserInput{Email: &taken}); !apperr.IsConflict(err) {
		t.Fatalf("duplicate email: expected conflict, got %v", err)
	}
}

func TestUserService_DeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")
	bob := env.register(t, "Bob", "bob@x.com")

	category, _ := env.resources.Categories.Create(ctx, alice, payload(t, `{"name":"Work"}`))
	task, _ := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Plan","category_id":`+jsonUint(category.ID)+`}`))
	if _, err := env.resources.Reminders.Create(ctx, alice, payload(t,
		`{"title":"Ping","reminder_time":"2026-03-02T09:00:00Z","task_id":`+jsonUint(task.ID)+`}`)); err != nil {
		t.Fatal(err)
	}

	if _, err := env.resources.Categories.Create(ctx, bob, payload(t, `{"name":"Bob's"}`)); err != nil {
		t.Fatal(err)
	}

	if err := env.users.Delete(ctx, alice, alice.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if left, _ := env.resources.Categories.List(ctx, bob); len(left) != 1 {
		t.Fatalf("other user's categories = %d, want 1", len(left))
	}
	categories, _ := env.resources.Categories.List(ctx, alice)
	tasks, _ := env.resources.Tasks.List(ctx, nil)
	reminders, _ := env.resources.Reminders.List(ctx, nil)
	if len(categories) != 0 || len(tasks) != 0 || len(reminders) != 0 {
		t.Fatalf("rows survived user deletion: %d categories, %d tasks, %d reminders",
			len(categories), len(tasks), len(reminders))
	}

	if _, err := env.auth.Profile(ctx, alice); !apperr.IsNotFound(err) {
		t.Fatalf("profile after delete: expected not found, got %v", err)
	}
	if err := env.users.Delete(ctx, alice, alice.UserID); !apperr.IsNotFound(err) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestTaskDeletion_ReminderKeepsNullTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	task, _ := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Plan"}`))
	reminder, err := env.resources.Reminders.Create(ctx, alice, payload(t,
		`{"title":"Ping","reminder_time":"2026-03-02T09:00:00Z","task_id":`+jsonUint(task.ID)+`}`))
	if err != nil {
		t.Fatal(err)
	}

	if err := env.resources.Tasks.Delete(ctx, alice, task.ID); err != nil {
		t.Fatalf("Delete task: %v", err)
	}
	got, err := env.resources.Reminders.Get(ctx, alice, reminder.ID)
	if err != nil {
		t.Fatalf("reminder should survive: %v", err)
	}
	if got.TaskID != nil {
		t.Fatalf("task_id = %d, want null", *got.TaskID)
	}
}

func TestReminderDispatcher_SendsDueOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	task, _ := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Ship <release>"}`))
	due, err := env.resources.Reminders.Create(ctx, alice, payload(t,
		`{"title":"Standup","message":"bring notes","reminder_time":"2026-03-01T09:59:00Z","task_id":`+jsonUint(task.ID)+`}`))
	if err != nil {
		t.Fatal(err)
	}
	later, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Lunch","reminder_time":"2026-03-01T12:00:00Z"}`))
	if err != nil {
		t.Fatal(err)
	}

	var delivered []notify.Notification
	recorder := notify.Func(func(_ context.Context, n notify.Notification) error {
		delivered = append(delivered, n)
		return nil
	})
	dispatcher := NewReminderDispatcher(repository.NewReminderRepository(env.db), recorder, env.clock, nil)

	sent, err := dispatcher.DispatchDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("DispatchDue = %d, %v; want 1", sent, err)
	}
	if len(delivered) != 1 || delivered[0].ReminderID != due.ID || delivered[0].UserID != alice.UserID {
		t.Fatalf("delivered = %+v", delivered)
	}
	if !strings.Contains(delivered[0].Text, "Ship &lt;release&gt;") || !strings.Contains(delivered[0].Text, "bring notes") {
		t.Fatalf("notification text = %q", delivered[0].Text)
	}

	if sent, _ := dispatcher.DispatchDue(ctx); sent != 0 {
		t.Fatalf("second pass sent %d, want 0", sent)
	}

	env.clock.Advance(3 * time.Hour)
	if sent, _ := dispatcher.DispatchDue(ctx); sent != 1 {
		t.Fatalf("after advancing clock sent %d, want 1", sent)
	}
	got, _ := env.resources.Reminders.Get(ctx, alice, later.ID)
	if !got.IsSent {
		t.Fatal("later reminder not marked sent")
	}
}

func TestReminderDispatcher_FailedNotificationStaysUnsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	reminder, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Standup","reminder_time":"2026-03-01T09:00:00Z"}`))
	if err != nil {
		t.Fatal(err)
	}

	failing := notify.Func(func(context.Context, notify.Notification) error { return errors.New("channel down") })
	dispatcher := NewReminderDispatcher(repository.NewReminderRepository(env.db), failing, env.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	sent, err := dispatcher.DispatchDue(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("DispatchDue = %d, %v; want 0, nil", sent, err)
	}
	got, _ := env.resources.Reminders.Get(ctx, alice, reminder.ID)
	if got.IsSent {
		t.Fatal("reminder marked sent although delivery failed")
	}
}

func TestIntervalSpec(t *testing.T) {
	if _, err := intervalSpec(0); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if spec, _ := intervalSpec(90 * time.Second); spec != "@every 90s" {
		t.Fatalf("spec = %q", spec)
	}
	if spec, _ := intervalSpec(200 * time.Millisecond); spec != "@every 1s" {
		t.Fatalf("sub-second spec = %q", spec)
	}
}

func TestSchedulerService_Every(t *testing.T) {
	scheduler := NewSchedulerService(time.UTC, nil)
	if _, err := scheduler.Every("noop", 0, time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := scheduler.Every("noop", time.Minute, time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if scheduler.Entries() != 1 {
		t.Fatalf("Entries = %d, want 1", scheduler.Entries())
	}
	scheduler.Start()
	scheduler.Stop()
}

func jsonUint(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestReminderDispatcher_ComparesInstantsAcrossOffsets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	// 09:30Z, due at 10:00Z.
	due, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"East","reminder_time":"2026-03-01T11:30:00+02:00"}`))
	if err != nil {
		t.Fatal(err)
	}
	// 13:00Z, not yet due.
	later, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"West","reminder_time":"2026-03-01T08:00:00-05:00"}`))
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC); !due.ReminderTime.Equal(want) || due.ReminderTime.Location() != time.UTC {
		t.Fatalf("reminder_time = %v, want %v in UTC", due.ReminderTime, want)
	}

	var delivered []uint
	recorder := notify.Func(func(_ context.Context, n notify.Notification) error {
		delivered = append(delivered, n.ReminderID)
		return nil
	})
	dispatcher := NewReminderDispatcher(repository.NewReminderRepository(env.db), recorder, env.clock, nil)

	sent, err := dispatcher.DispatchDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("DispatchDue = %d, %v; want 1", sent, err)
	}
	if len(delivered) != 1 || delivered[0] != due.ID {
		t.Fatalf("delivered = %v, want [%d]", delivered, due.ID)
	}

	// Moving the later reminder by an offset-only update keeps the same instant.
	if _, err := env.resources.Reminders.Update(ctx, alice, later.ID, payload(t, `{"reminder_time":"2026-03-01T14:00:00+01:00"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sent, _ := dispatcher.DispatchDue(ctx); sent != 0 {
		t.Fatalf("sent %d before 13:00Z, want 0", sent)
	}
	env.clock.Set(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC))
	if sent, _ := dispatcher.DispatchDue(ctx); sent != 1 {
		t.Fatalf("sent %d at 13:00Z, want 1", sent)
	}
}

func TestReminderDispatcher_FailuresDoNotBlockNewerReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	broken := map[uint]bool{}
	for _, ts := range []string{"2026-03-01T07:00:00Z", "2026-03-01T07:30:00Z", "2026-03-01T08:00:00Z"} {
		r, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Old","reminder_time":"`+ts+`"}`))
		if err != nil {
			t.Fatal(err)
		}
		broken[r.ID] = true
	}
	fresh, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Fresh","reminder_time":"2026-03-01T09:00:00Z"}`))
	if err != nil {
		t.Fatal(err)
	}

	attempts := map[uint]int{}
	notifier := notify.Func(func(_ context.Context, n notify.Notification) error {
		attempts[n.ReminderID]++
		if broken[n.ReminderID] {
			return errors.New("recipient unreachable")
		}
		return nil
	})
	dispatcher := NewReminderDispatcher(repository.NewReminderRepository(env.db), notifier, env.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	dispatcher.batch = 2

	sent, err := dispatcher.DispatchDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("DispatchDue = %d, %v; want 1", sent, err)
	}
	if attempts[fresh.ID] != 1 {
		t.Fatalf("fresh reminder attempts = %d, want 1", attempts[fresh.ID])
	}
	for id := range broken {
		if attempts[id] != 1 {
			t.Errorf("reminder %d attempted %d times in one pass, want 1", id, attempts[id])
		}
	}
}

func TestEmailIsMatchedExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.auth.Register(ctx, RegisterInput{Name: "A", Email: " a@x.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if session.User.Email != " a@x.com" {
		t.Fatalf("stored email = %q, want it unchanged", session.User.Email)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret"}); !apperr.IsUnauthenticated(err) {
		t.Fatalf("login with different spacing: expected unauthenticated, got %v", err)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: " a@x.com", Password: "secret"}); err != nil {
		t.Fatalf("login with stored email: %v", err)
	}
	if _, err := env.auth.Register(ctx, RegisterInput{Name: "B", Email: "a@x.com", Password: "secret"}); err != nil {
		t.Fatalf("register distinct email: %v", err)
	}
	if _, err := env.auth.Register(ctx, RegisterInput{Name: "C", Email: "   ", Password: "secret"}); !apperr.IsValidation(err) {
		t.Fatalf("blank email: expected validation error, got %v", err)
	}
}

func TestDateOnlyValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@x.com")

	task, err := env.resources.Tasks.Create(ctx, alice, payload(t, `{"title":"Plan","due_date":"2026-03-05"}`))
	if err != nil {
		t.Fatalf("Create task: %v", err)
	}
	if want := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC); task.DueDate == nil || !task.DueDate.Equal(want) {
		t.Fatalf("due_date = %v, want %v", task.DueDate, want)
	}

	updated, err := env.resources.Tasks.Update(ctx, alice, task.ID, payload(t, `{"due_date":"2026-04-01"}`))
	if err != nil {
		t.Fatalf("Update task: %v", err)
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !updated.DueDate.Equal(want) {
		t.Fatalf("updated due_date = %v, want %v", updated.DueDate, want)
	}

	reminder, err := env.resources.Reminders.Create(ctx, alice, payload(t, `{"title":"Ping","reminder_time":"2026-03-02"}`))
	if err != nil {
		t.Fatalf("Create reminder: %v", err)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !reminder.ReminderTime.Equal(want) {
		t.Fatalf("reminder_time = %v, want %v", reminder.ReminderTime, want)
	}

	for _, body := range []string{`{"title":"Bad","due_date":"2026-13-05"}`, `{"title":"Bad","due_date":"05/03/2026"}`} {
		_, err := env.resources.Tasks.Create(ctx, alice, payload(t, body))
		if fields := apperr.Fields(err); !apperr.IsValidation(err) || len(fields) != 1 || fields[0] != "due_date" {
			t.Errorf("%s: expected due_date validation error, got %v", body, err)
		}
	}
}
