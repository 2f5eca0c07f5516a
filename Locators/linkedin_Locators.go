package locators

/**
 * LinkedIn 网页元素定位器
 */

const LINKEDIN_HOME_URL = "https://www.linkedin.com/"
const LINKEDIN_LOGIN_URL = "https://www.linkedin.com/login"
const LINKEDIN_SEARCH_URL = "https://www.linkedin.com/jobs/search/"
const LINKEDIN_JOB_VIEW_URL = "https://www.linkedin.com/jobs/view/"

// 登录
const LINKEDIN_COOKIE_ACCEPT = "button[action-type='ACCEPT']"
const LINKEDIN_USERNAME_INPUT = "#username"
const LINKEDIN_PASSWORD_INPUT = "#password"
const LINKEDIN_LOGIN_SUBMIT = "button[type='submit']"
const LINKEDIN_LOGIN_INDICATOR = "#global-nav"
const LINKEDIN_FEED_PATH = "/feed"

/**
 * 职位列表
 */
const LINKEDIN_JOB_LIST = "li[data-occludable-job-id]"
const LINKEDIN_JOB_ID_ATTR = "data-occludable-job-id"
const LINKEDIN_JOB_TITLE = "h3.job-result-card__title, .job-card-list__title"
const LINKEDIN_JOB_SPANS = "span"
const LINKEDIN_EASY_APPLY_TEXT = "Easy Apply"

// 职位详情与申请弹窗
const LINKEDIN_APPLY_BUTTON = "button.jobs-apply-button"
const LINKEDIN_FORM_LABELS = "//div[contains(@class, 'jobs-easy-apply-modal')]//label"
const LINKEDIN_SUBMIT_BUTTON = "button[aria-label='Submit application']"
const LINKEDIN_SUCCESS = "div.artdeco-toast-item--success"
const LINKEDIN_MODAL_DISMISS = "button[aria-label='Dismiss']"
const LINKEDIN_DISCARD_CONFIRM = "button[data-control-name='discard_application_confirm_btn']"
