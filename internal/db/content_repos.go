package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"courseflow/internal/types"
)

// LessonRepository provides data access for the lessons table. Lessons are
// keyed by their 1-based day index; the updated_at column is the content
// version the schedulers embed in job keys.
type LessonRepository struct {
	db DBTX
}

// NewLessonRepository creates a new LessonRepository backed by the given
// database connection (pool or transaction).
func NewLessonRepository(db DBTX) *LessonRepository {
	return &LessonRepository{db: db}
}

// GetByDay returns the lesson for a day index, or nil when the day has no
// lesson.
func (r *LessonRepository) GetByDay(ctx context.Context, dayIndex int) (*types.Lesson, error) {
	var l types.Lesson
	row := r.db.QueryRow(ctx,
		`SELECT id, day_index, title, description, COALESCE(video_url, ''),
		        points_viewed, created_at, updated_at
		 FROM lessons WHERE day_index = $1`,
		dayIndex,
	)
	err := row.Scan(&l.ID, &l.DayIndex, &l.Title, &l.Description, &l.VideoURL,
		&l.PointsViewed, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get lesson", err)
	}
	return &l, nil
}

// Upsert inserts or replaces the lesson for its day index, bumping updated_at
// so queued-but-unsent plans built against the old content are invalidated.
func (r *LessonRepository) Upsert(ctx context.Context, l *types.Lesson) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO lessons (day_index, title, description, video_url, points_viewed)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (day_index) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			video_url = EXCLUDED.video_url,
			points_viewed = EXCLUDED.points_viewed,
			updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		l.DayIndex, l.Title, l.Description, l.VideoURL, l.PointsViewed,
	)
	if err := row.Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert lesson", err)
	}
	return nil
}

// QuestRepository provides data access for the quests table.
type QuestRepository struct {
	db DBTX
}

// NewQuestRepository creates a new QuestRepository backed by the given
// database connection (pool or transaction).
func NewQuestRepository(db DBTX) *QuestRepository {
	return &QuestRepository{db: db}
}

// GetByDay returns the quest for a day index, or nil when the day has no
// quest.
func (r *QuestRepository) GetByDay(ctx context.Context, dayIndex int) (*types.Quest, error) {
	var q types.Quest
	row := r.db.QueryRow(ctx,
		`SELECT id, day_index, prompt, points, COALESCE(photo_file_id, ''),
		        created_at, updated_at
		 FROM quests WHERE day_index = $1`,
		dayIndex,
	)
	err := row.Scan(&q.ID, &q.DayIndex, &q.Prompt, &q.Points, &q.PhotoFileID,
		&q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get quest", err)
	}
	return &q, nil
}

// Upsert inserts or replaces the quest for its day index, bumping updated_at.
func (r *QuestRepository) Upsert(ctx context.Context, q *types.Quest) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO quests (day_index, prompt, points, photo_file_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (day_index) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			points = EXCLUDED.points,
			photo_file_id = EXCLUDED.photo_file_id,
			updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		q.DayIndex, q.Prompt, q.Points, q.PhotoFileID,
	)
	if err := row.Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert quest", err)
	}
	return nil
}

// QuestionnaireRepository provides data access for questionnaires and their
// responses.
type QuestionnaireRepository struct {
	db DBTX
}

// NewQuestionnaireRepository creates a new QuestionnaireRepository backed by
// the given database connection (pool or transaction).
func NewQuestionnaireRepository(db DBTX) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: db}
}

// GetByID returns a questionnaire by ID. Returns a not-found error when the
// questionnaire does not exist.
func (r *QuestionnaireRepository) GetByID(ctx context.Context, id int64) (*types.Questionnaire, error) {
	q, err := r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, question, qtype, day_index, use_in_charts, points, created_by, created_at, updated_at
		 FROM questionnaires WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundQuestionnaire, "questionnaire not found", nil)
	}
	return q, nil
}

// ListForDay returns the questionnaires due on a day index, oldest first:
// those bound to the day plus the global daily ones, which carry no day index
// and go out every day.
func (r *QuestionnaireRepository) ListForDay(ctx context.Context, dayIndex int) ([]*types.Questionnaire, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, question, qtype, day_index, use_in_charts, points, created_by, created_at, updated_at
		 FROM questionnaires
		 WHERE (day_index = $1 AND qtype = ANY($2))
		    OR (qtype = $3 AND day_index IS NULL)
		 ORDER BY id ASC`,
		dayIndex,
		[]string{string(types.QuestionnaireManual), string(types.QuestionnaireDaily)},
		string(types.QuestionnaireDaily),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list questionnaires", err)
	}
	return r.collect(rows)
}

// Create inserts a questionnaire and populates its ID and timestamps.
func (r *QuestionnaireRepository) Create(ctx context.Context, q *types.Questionnaire) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO questionnaires (question, qtype, day_index, use_in_charts, points, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		q.Question, string(q.Type), q.DayIndex, q.UseInCharts, q.Points, q.CreatedBy,
	)
	if err := row.Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create questionnaire", err)
	}
	return nil
}

// HasResponse reports whether the user has answered the questionnaire.
func (r *QuestionnaireRepository) HasResponse(ctx context.Context, questionnaireID, userID int64) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM questionnaire_responses
			WHERE questionnaire_id = $1 AND user_id = $2
		 )`,
		questionnaireID, userID,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check questionnaire response", err)
	}
	return exists, nil
}

func (r *QuestionnaireRepository) scanOne(row pgx.Row) (*types.Questionnaire, error) {
	var q types.Questionnaire
	var qtype string
	err := row.Scan(&q.ID, &q.Question, &qtype, &q.DayIndex, &q.UseInCharts,
		&q.Points, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan questionnaire", err)
	}
	q.Type = types.QuestionnaireType(qtype)
	return &q, nil
}

func (r *QuestionnaireRepository) collect(rows pgx.Rows) ([]*types.Questionnaire, error) {
	defer rows.Close()
	var out []*types.Questionnaire
	for rows.Next() {
		var q types.Questionnaire
		var qtype string
		if err := rows.Scan(&q.ID, &q.Question, &qtype, &q.DayIndex, &q.UseInCharts,
			&q.Points, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan questionnaire", err)
		}
		q.Type = types.QuestionnaireType(qtype)
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate questionnaires", err)
	}
	return out, nil
}
