package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campuswatch/internal/metrics"
	"campuswatch/internal/models"
	"campuswatch/internal/privacy"
	"campuswatch/internal/validation"
)

// commandDefinition describes one slash command: its auth requirements and
// the handler that executes it.
type commandDefinition struct {
	Name         string
	Usage        string
	Description  string
	RequiresAuth bool
	AllowedRoles []models.Role
	Handler      func(ctx context.Context, req *commandRequest) string
}

// commandRequest is the resolved context one handler runs with.
type commandRequest struct {
	Sender *models.WhatsAppUser
	Args   []string
	Raw    string
}

const listLimit = 10

// CommandRouter parses /command messages, enforces auth and role checks, and
// dispatches to handlers. Every path replies exactly once; handler panics are
// recovered at the router boundary and become a generic error reply.
type CommandRouter struct {
	repo       Repository
	notifier   *Notifier
	sender     MessageSender
	classifier ActivityClassifier
	logger     *logrus.Logger
	commands   map[string]*commandDefinition
}

func NewCommandRouter(repo Repository, notifier *Notifier, sender MessageSender, classifier ActivityClassifier, logger *logrus.Logger) *CommandRouter {
	r := &CommandRouter{
		repo:       repo,
		notifier:   notifier,
		sender:     sender,
		classifier: classifier,
		logger:     logger,
	}
	r.commands = map[string]*commandDefinition{
		"start": {
			Name:        "start",
			Usage:       "/start",
			Description: "Introduction and getting started",
			Handler:     r.handleStart,
		},
		"help": {
			Name:        "help",
			Usage:       "/help",
			Description: "List available commands",
			Handler:     r.handleHelp,
		},
		"verify": {
			Name:        "verify",
			Usage:       "/verify",
			Description: "Activate your staff account",
			Handler:     r.handleVerify,
		},
		"report": {
			Name:         "report",
			Usage:        "/report <location> <description>",
			Description:  "File a new incident report",
			RequiresAuth: true,
			Handler:      r.handleReport,
		},
		"status": {
			Name:         "status",
			Usage:        "/status <reference>",
			Description:  "Check the status of a report",
			RequiresAuth: true,
			Handler:      r.handleStatus,
		},
		"myreports": {
			Name:         "myreports",
			Usage:        "/myreports",
			Description:  "List your recent reports",
			RequiresAuth: true,
			Handler:      r.handleMyReports,
		},
		"assigned": {
			Name:         "assigned",
			Usage:        "/assigned",
			Description:  "List tasks assigned to you",
			RequiresAuth: true,
			AllowedRoles: []models.Role{models.RoleMaintainer, models.RoleAdmin},
			Handler:      r.handleAssigned,
		},
		"complete": {
			Name:         "complete",
			Usage:        "/complete <reference> [notes]",
			Description:  "Mark an assigned task as resolved",
			RequiresAuth: true,
			AllowedRoles: []models.Role{models.RoleMaintainer, models.RoleAdmin},
			Handler:      r.handleComplete,
		},
		"assign": {
			Name:         "assign",
			Usage:        "/assign <reference> <phone> [instructions]",
			Description:  "Assign a report to a staff member",
			RequiresAuth: true,
			AllowedRoles: []models.Role{models.RoleAdmin},
			Handler:      r.handleAssign,
		},
		"stats": {
			Name:         "stats",
			Usage:        "/stats",
			Description:  "Show report counts by status",
			RequiresAuth: true,
			AllowedRoles: []models.Role{models.RoleAdmin},
			Handler:      r.handleStats,
		},
	}
	return r
}

// Route handles one command message end to end, including the reply.
func (r *CommandRouter) Route(ctx context.Context, sender *models.WhatsAppUser, text string) {
	name, args := parseCommand(text)

	reply := r.dispatch(ctx, sender, name, args, text)
	if reply == "" {
		reply = "Something went wrong handling your command. Please try again."
	}

	if _, err := r.sender.SendText(ctx, sender.PhoneNumber, reply); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldCommand: name,
			"phone":         privacy.MaskPhoneNumber(sender.PhoneNumber),
		}).Error("Failed to send command reply")
	}
}

// dispatch resolves and runs the handler, converting panics and auth
// failures into reply text.
func (r *CommandRouter) dispatch(ctx context.Context, sender *models.WhatsAppUser, name string, args []string, raw string) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				LogFieldCommand: name,
				"panic":         fmt.Sprint(rec),
			}).Error("Command handler panicked")
			metrics.IncrementCounter("command_panics", map[string]string{"command": name}, "Recovered command handler panics")
			reply = "Something went wrong handling your command. Please try again."
		}
	}()

	def, ok := r.commands[name]
	if !ok {
		metrics.IncrementCounter("commands_unknown", nil, "Unknown command attempts")
		return fmt.Sprintf("Unknown command /%s. Send /help to see what I understand.", name)
	}

	metrics.IncrementCounter("commands_total", map[string]string{"command": name}, "Commands received")

	if def.RequiresAuth && !sender.IsVerified {
		return "This command requires a verified account. Send /verify to get started."
	}
	if def.RequiresAuth && !sender.HasRole(def.AllowedRoles) {
		return "You do not have permission to use this command."
	}

	return def.Handler(ctx, &commandRequest{Sender: sender, Args: args, Raw: raw})
}

// parseCommand splits "/name arg1 arg2" into its name and arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	return name, fields[1:]
}

func (r *CommandRouter) handleStart(ctx context.Context, req *commandRequest) string {
	return "Welcome to the campus incident line.\n\n" +
		"Report an issue by simply describing it in a message, or use /report <location> <description>.\n" +
		"Send /help for the full command list."
}

// handleHelp lists only the commands this sender can actually use.
func (r *CommandRouter) handleHelp(ctx context.Context, req *commandRequest) string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		def := r.commands[name]
		if def.RequiresAuth && !req.Sender.IsVerified {
			continue
		}
		if def.RequiresAuth && !req.Sender.HasRole(def.AllowedRoles) {
			continue
		}
		fmt.Fprintf(&b, "\n%s - %s", def.Usage, def.Description)
	}
	if !req.Sender.IsVerified {
		b.WriteString("\n\nVerify your account with /verify to unlock reporting commands.")
	}
	return b.String()
}

// handleVerify completes account activation for numbers an administrator has
// already linked to a staff record. The linking itself happens out of band.
func (r *CommandRouter) handleVerify(ctx context.Context, req *commandRequest) string {
	if req.Sender.IsVerified {
		return "Your account is already verified."
	}
	if req.Sender.LinkedUserID == "" {
		return "Your number is not linked to a staff account yet. Please ask an administrator to add you, then send /verify again."
	}

	role := req.Sender.Role
	if role == "" {
		role = models.RoleStaff
	}
	if err := r.repo.SetUserVerified(ctx, req.Sender.PhoneNumber, req.Sender.LinkedUserID, role); err != nil {
		r.logger.WithError(err).Error("Failed to verify user")
		return "Verification failed due to an internal error. Please try again later."
	}
	req.Sender.IsVerified = true
	return "Your account is now verified. Send /help to see what you can do."
}

// handleReport files an incident directly: the first argument is taken as
// the location and the rest as the description.
func (r *CommandRouter) handleReport(ctx context.Context, req *commandRequest) string {
	if len(req.Args) < 2 {
		return "Usage: /report <location> <description>\nExample: /report Library Leaking roof above the east shelves"
	}

	location := req.Args[0]
	description := strings.Join(req.Args[1:], " ")

	categories, err := r.repo.GetCategories(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to load categories for report command")
		return "Could not file your report right now. Please try again later."
	}

	parsed := r.classifier.Classify(ctx, description, categories)
	parsed.Location = validation.TruncateString(location, 100)
	parsed.Notes = validation.TruncateString(description, 500)

	activity := buildActivity(parsed, req.Sender.PhoneNumber)
	if err := r.repo.CreateActivity(ctx, activity); err != nil {
		r.logger.WithError(err).Error("Failed to create activity from report command")
		return "Could not file your report right now. Please try again later."
	}
	r.appendUpdate(ctx, activity, req.Sender.PhoneNumber, "Report filed via /report", models.UpdateTypeCreated)

	return fmt.Sprintf("Report filed.\n\nReference: %s\n%s %s\nLocation: %s\n\nUse /status %s to check progress.",
		activity.ReferenceNumber(),
		activity.Status.StatusGlyph(), activity.Subcategory,
		activity.Location,
		activity.ReferenceNumber(),
	)
}

func (r *CommandRouter) handleStatus(ctx context.Context, req *commandRequest) string {
	if len(req.Args) < 1 {
		return "Usage: /status <reference>\nExample: /status MAI-1a2b3c4d"
	}

	activity, err := r.repo.GetActivityByReference(ctx, req.Args[0])
	if err != nil || activity == nil {
		return fmt.Sprintf("No report found for reference %s.", req.Args[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\nReference: %s\nStatus: %s\nLocation: %s",
		activity.Status.StatusGlyph(), activity.Subcategory,
		activity.ReferenceNumber(),
		activity.Status,
		activity.Location,
	)
	if activity.ResolutionNotes != "" {
		fmt.Fprintf(&b, "\nResolution: %s", validation.TruncateString(activity.ResolutionNotes, notesPreviewLength))
	}
	return b.String()
}

func (r *CommandRouter) handleMyReports(ctx context.Context, req *commandRequest) string {
	activities, err := r.repo.ListActivitiesByReporter(ctx, req.Sender.PhoneNumber, listLimit)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list reporter activities")
		return "Could not load your reports right now. Please try again later."
	}
	if len(activities) == 0 {
		return "You have no reports yet. Describe an issue in a message to file one."
	}
	return formatActivityList("Your recent reports:", activities)
}

func (r *CommandRouter) handleAssigned(ctx context.Context, req *commandRequest) string {
	activities, err := r.repo.ListActivitiesAssignedTo(ctx, req.Sender.LinkedUserID, listLimit)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list assigned activities")
		return "Could not load your tasks right now. Please try again later."
	}
	if len(activities) == 0 {
		return "No open tasks are assigned to you."
	}
	return formatActivityList("Tasks assigned to you:", activities)
}

func (r *CommandRouter) handleComplete(ctx context.Context, req *commandRequest) string {
	if len(req.Args) < 1 {
		return "Usage: /complete <reference> [notes]"
	}

	activity, err := r.repo.GetActivityByReference(ctx, req.Args[0])
	if err != nil || activity == nil {
		return fmt.Sprintf("No report found for reference %s.", req.Args[0])
	}
	if activity.Status == models.StatusResolved {
		return fmt.Sprintf("Report %s is already resolved.", activity.ReferenceNumber())
	}

	notes := strings.Join(req.Args[1:], " ")
	if notes == "" {
		notes = "Marked as resolved"
	}
	notes = validation.TruncateString(notes, 500)

	oldStatus := activity.Status
	if err := r.repo.UpdateActivityStatus(ctx, activity.ID, models.StatusResolved, notes); err != nil {
		r.logger.WithError(err).Error("Failed to resolve activity")
		return "Could not update the report right now. Please try again later."
	}
	r.appendUpdate(ctx, activity, req.Sender.PhoneNumber, notes, models.UpdateTypeResolution)

	activity.Status = models.StatusResolved
	activity.ResolutionNotes = notes
	if result := r.notifier.NotifyStatusChange(ctx, activity, oldStatus, models.StatusResolved, notes); !result.Sent {
		r.logger.WithField("reason", result.Reason).Warn("Reporter notification failed after resolution")
	}

	return fmt.Sprintf("Report %s marked as resolved. The reporter has been notified.", activity.ReferenceNumber())
}

func (r *CommandRouter) handleAssign(ctx context.Context, req *commandRequest) string {
	if len(req.Args) < 2 {
		return "Usage: /assign <reference> <phone> [instructions]"
	}

	activity, err := r.repo.GetActivityByReference(ctx, req.Args[0])
	if err != nil || activity == nil {
		return fmt.Sprintf("No report found for reference %s.", req.Args[0])
	}

	assigneePhone := validation.NormalizePhoneNumber(req.Args[1])
	assignee, err := r.repo.GetWhatsAppUser(ctx, assigneePhone)
	if err != nil {
		r.logger.WithError(err).Error("Failed to look up assignee")
		return "Could not assign the report right now. Please try again later."
	}
	if assignee == nil || !assignee.IsVerified || assignee.LinkedUserID == "" {
		return "That phone number does not belong to a verified staff member."
	}

	instructions := validation.TruncateString(strings.Join(req.Args[2:], " "), 500)
	if err := r.repo.AssignActivity(ctx, activity.ID, assignee.LinkedUserID, instructions); err != nil {
		r.logger.WithError(err).Error("Failed to assign activity")
		return "Could not assign the report right now. Please try again later."
	}
	r.appendUpdate(ctx, activity, req.Sender.PhoneNumber,
		fmt.Sprintf("Assigned to %s", assignee.DisplayName), models.UpdateTypeAssignment)

	oldStatus := activity.Status
	activity.Status = models.StatusInProgress
	activity.AssignedToUserID = assignee.LinkedUserID
	activity.AssignmentInstructions = instructions

	if result := r.notifier.NotifyAssignment(ctx, activity, assignee.PhoneNumber, instructions); !result.Sent {
		r.logger.WithField("reason", result.Reason).Warn("Assignee notification failed")
	}
	if result := r.notifier.NotifyStatusChange(ctx, activity, oldStatus, models.StatusInProgress, ""); !result.Sent {
		r.logger.WithField("reason", result.Reason).Warn("Reporter notification failed after assignment")
	}

	return fmt.Sprintf("Report %s assigned to %s. Both parties have been notified.",
		activity.ReferenceNumber(), assignee.DisplayName)
}

func (r *CommandRouter) handleStats(ctx context.Context, req *commandRequest) string {
	counts, err := r.repo.CountActivitiesByStatus(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to count activities")
		return "Could not load statistics right now. Please try again later."
	}

	order := []models.ActivityStatus{models.StatusUnassigned, models.StatusOpen, models.StatusInProgress, models.StatusResolved}
	total := 0
	var b strings.Builder
	b.WriteString("Report statistics:\n")
	for _, status := range order {
		fmt.Fprintf(&b, "\n%s %s: %d", status.StatusGlyph(), status, counts[status])
		total += counts[status]
	}
	fmt.Fprintf(&b, "\n\nTotal: %d", total)
	return b.String()
}

// appendUpdate records one entry in the append-only activity log. Failures
// are logged, not surfaced: the primary mutation already succeeded.
func (r *CommandRouter) appendUpdate(ctx context.Context, activity *models.Activity, authorID, notes, updateType string) {
	update := &models.ActivityUpdate{
		ID:            uuid.NewString(),
		ActivityID:    activity.ID,
		AuthorID:      authorID,
		Notes:         notes,
		StatusContext: activity.Status,
		UpdateType:    updateType,
	}
	if err := r.repo.AppendActivityUpdate(ctx, update); err != nil {
		r.logger.WithError(err).WithField(LogFieldActivityID, activity.ID).Warn("Failed to append activity update")
	}
}

func formatActivityList(header string, activities []*models.Activity) string {
	var b strings.Builder
	b.WriteString(header)
	for _, a := range activities {
		fmt.Fprintf(&b, "\n\n%s %s\n%s · %s · %s",
			a.Status.StatusGlyph(), a.Subcategory,
			a.ReferenceNumber(), a.Status, a.Location,
		)
	}
	return b.String()
}

// buildActivity constructs a new incident from sanitized classifier output.
// Fallback-classified reports are flagged for human review.
func buildActivity(parsed models.ParsedActivityData, reporterPhone string) *models.Activity {
	return &models.Activity{
		ID:            uuid.NewString(),
		CategoryID:    parsed.CategoryID,
		Subcategory:   parsed.Subcategory,
		Location:      parsed.Location,
		Notes:         parsed.Notes,
		Status:        models.StatusOpen,
		ReporterPhone: reporterPhone,
		NeedsReview:   parsed.Source == models.SourceFallback,
	}
}
